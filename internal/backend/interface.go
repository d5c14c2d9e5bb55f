package backend

import (
	"context"

	"courses/internal/local"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the local store and its cleanup function
type BackendResult struct {
	Store   local.Store
	Cleanup CleanupFunc
}

// Factory creates the local fallback store based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Key the purchases array is stored under, shared by every backend
	StorageKey string

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisURL string

	// Memory specific; empty starts with no purchases
	SeedFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, RedisBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
