package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	applog "courses/internal/log"
)

// ErrProcessorRunning is returned by Start on a processor already started.
var ErrProcessorRunning = errors.New("sync processor is already running")

// PendingProcessor pushes one batch of locally saved purchases to the API and
// reports how many were synced.
type PendingProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

type SyncProcessorConfig struct {
	// PollInterval is the delay between drains while the API answers.
	PollInterval time.Duration
	// MaxBackoff caps the delay, doubled after each failed drain.
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		MaxBackoff:   5 * time.Minute,
	}
}

// SyncProcessor drains the local store on a timer. It catches purchases whose
// sync message was never published or got lost.
type SyncProcessor struct {
	pending PendingProcessor
	config  SyncProcessorConfig
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSyncProcessor(pending PendingProcessor, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxBackoff < config.PollInterval {
		config.MaxBackoff = max(def.MaxBackoff, config.PollInterval)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncProcessor{
		pending: pending,
		config:  config,
		logger:  logger.With(applog.FieldComponent, applog.ComponentSync),
	}
}

// Start runs the drain loop until ctx ends or Stop is called.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrProcessorRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(loopCtx, p.done)

	p.logger.InfoContext(ctx, "Sync processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop cancels the loop and waits for the batch in flight, or for ctx.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		p.logger.InfoContext(ctx, "Sync processor stopped")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
}

func (p *SyncProcessor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	wait := p.config.PollInterval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		wait = p.nextWait(wait, p.drain(ctx))
		timer.Reset(wait)
	}
}

func (p *SyncProcessor) drain(ctx context.Context) error {
	n, err := p.pending.ProcessPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WarnContext(ctx, "Sync batch failed", applog.FieldError, err, "synced", n)
		}
		return err
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Sync batch completed", "synced", n)
	}
	return nil
}

// nextWait doubles the delay after a failure and resets it after a success.
func (p *SyncProcessor) nextWait(current time.Duration, err error) time.Duration {
	if err == nil {
		return p.config.PollInterval
	}
	return min(current*2, p.config.MaxBackoff)
}
