// Package checkpoint provides durable snapshot storage for crash-safe,
// resumable graph execution.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Saver persists checkpoints per thread. Implementations must be safe for
// concurrent use across threads; the scheduler serializes saves within a
// single thread.
//
// Save must be durable before it returns: the engine treats a step as
// committed only once its checkpoint is stored, which is what makes
// post-crash resumption exact.
type Saver interface {
	// Save stores a checkpoint, keyed by (thread id, step).
	// Saving the same (thread id, step) again replaces the stored
	// checkpoint; that only happens when a paused step later executes.
	Save(ctx context.Context, cp *Checkpoint) error

	// LoadLatest retrieves the highest-step checkpoint for a thread.
	// Returns ErrNotFound if the thread has none.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Load retrieves the checkpoint at a specific step.
	// Returns ErrNotFound if it doesn't exist.
	Load(ctx context.Context, threadID string, step int) (*Checkpoint, error)

	// List returns checkpoint metadata for a thread, newest step first.
	// Returns an empty slice (not an error) for an unknown thread.
	List(ctx context.Context, threadID string) ([]Info, error)

	// DeleteThread removes all checkpoints for a thread.
	// Returns nil if the thread has none.
	DeleteThread(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides checkpoint metadata without loading the full snapshot.
type Info struct {
	ID        string
	ThreadID  string
	Step      int
	ParentID  string
	CreatedAt time.Time
	Size      int64
}

// Sentinel errors for checkpoint storage.
var (
	// ErrNotFound indicates the requested checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrSaverClosed indicates the saver has been closed.
	ErrSaverClosed = errors.New("checkpoint saver closed")
)
