package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"courses/internal/amqp"
	"courses/internal/core"
	"courses/internal/local"
)

// Remote is the part of the purchases API the worker pushes to.
type Remote interface {
	Ping(ctx context.Context) error
	CreatePurchase(ctx context.Context, date core.Date, items []core.Item) (string, error)
}

// SyncWorker moves purchases saved locally while the API was down back to
// the API, removing them from the local store once accepted.
type SyncWorker struct {
	remote    Remote
	store     local.Store
	batchSize int

	// serializes pushes so a message and the periodic drain never send the
	// same purchase twice
	mu sync.Mutex
}

func NewSyncWorker(remote Remote, store local.Store, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		remote:    remote,
		store:     store,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single purchase sync message from AMQP. A
// purchase no longer in the local store was already synced or deleted, so
// the message is acknowledged. The message is also acknowledged when the
// push cannot happen: the purchase stays in the local store and the
// periodic drain retries it with backoff, instead of a redelivery loop
// against an API that is down.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.PurchaseSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"purchase_id", msg.ID,
		"timestamp", msg.Timestamp)

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok, err := local.Find(ctx, w.store, msg.ID)
	if err != nil {
		return fmt.Errorf("get purchase from local store: %w", err)
	}
	if !ok {
		slog.DebugContext(ctx, "Purchase already gone from local store", "purchase_id", msg.ID)
		return nil
	}
	if err := w.remote.Ping(ctx); err != nil {
		slog.DebugContext(ctx, "Remote API unavailable, leaving purchase to the drain",
			"purchase_id", msg.ID, "error", err)
		return nil
	}
	if err := w.syncPurchase(ctx, p); err != nil {
		slog.WarnContext(ctx, "Push failed, leaving purchase to the drain",
			"purchase_id", msg.ID, "error", err)
	}
	return nil
}

// ProcessPending pushes up to batchSize local purchases, oldest first. It
// stops at the first failure so ordering is kept.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.process(ctx, w.batchSize)
}

// StartupSyncCheck drains a larger batch when the worker starts, to recover
// from lost messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.process(ctx, w.batchSize*5)
	if err != nil {
		slog.WarnContext(ctx, "Startup sync incomplete", "synced", n, "error", err)
		return nil
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending purchases found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", n)
	return nil
}

func (w *SyncWorker) process(ctx context.Context, limit int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, err := w.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending purchases: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := w.remote.Ping(ctx); err != nil {
		slog.DebugContext(ctx, "Remote API unavailable, keeping purchases local",
			"pending", len(pending), "error", err)
		return 0, nil
	}
	if len(pending) > limit {
		pending = pending[:limit]
	}

	slog.InfoContext(ctx, "Processing pending purchases", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncPurchase(ctx, p); err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncPurchase(ctx context.Context, p core.Purchase) error {
	remoteID, err := w.remote.CreatePurchase(ctx, p.Date, p.Items)
	if err != nil {
		return fmt.Errorf("push purchase %s: %w", p.ID, err)
	}

	if err := local.Remove(ctx, w.store, p.ID); err != nil {
		// pushed already; a retry would duplicate it remotely
		slog.ErrorContext(ctx, "Failed to remove synced purchase from local store",
			"purchase_id", p.ID, "remote_id", remoteID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced purchase",
		"purchase_id", p.ID,
		"remote_id", remoteID,
		"date", p.Date.String(),
		"total_cents", p.Amount().Cents)
	return nil
}
