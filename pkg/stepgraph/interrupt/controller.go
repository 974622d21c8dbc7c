package interrupt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Store persists pending interrupts keyed by thread.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put records a pending interrupt. Fails with ErrAlreadyPaused if the
	// thread already has one.
	Put(ctx context.Context, rec *Record) error

	// Get returns the pending interrupt for a thread.
	// Returns ErrNoPending if there is none.
	Get(ctx context.Context, threadID string) (*Record, error)

	// Delete removes the pending interrupt for a thread.
	// Returns nil if there is none.
	Delete(ctx context.Context, threadID string) error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	pending map[string]*Record
}

// NewMemoryStore creates a new in-memory interrupt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string]*Record)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[rec.ThreadID]; exists {
		return fmt.Errorf("%w: thread %s", ErrAlreadyPaused, rec.ThreadID)
	}
	s.pending[rec.ThreadID] = rec.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, threadID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.pending[threadID]
	if !exists {
		return nil, fmt.Errorf("%w: thread %s", ErrNoPending, threadID)
	}
	return rec.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, threadID)
	return nil
}

// Controller coordinates pause and resume around guarded nodes.
type Controller struct {
	store  Store
	logger *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithStore sets the backing store. Default: in-memory.
func WithStore(store Store) ControllerOption {
	return func(c *Controller) { c.store = store }
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates an interrupt controller.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		store:  NewMemoryStore(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pause records a pending interrupt for a thread.
func (c *Controller) Pause(ctx context.Context, rec *Record) error {
	if err := c.store.Put(ctx, rec); err != nil {
		return err
	}
	c.logger.Info("thread paused",
		slog.String("thread_id", rec.ThreadID),
		slog.Int("step", rec.Step),
		slog.Int("pending_tasks", len(rec.Tasks)),
	)
	return nil
}

// Pending returns the outstanding interrupt for a thread, if any.
func (c *Controller) Pending(ctx context.Context, threadID string) (*Record, error) {
	return c.store.Get(ctx, threadID)
}

// Resolve validates the decision, removes the pending interrupt, and
// returns the record it resolved. The caller (the scheduler) carries out
// the decision's effect.
func (c *Controller) Resolve(ctx context.Context, threadID string, d Decision) (*Record, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	rec, err := c.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := c.store.Delete(ctx, threadID); err != nil {
		return nil, err
	}

	c.logger.Info("interrupt resolved",
		slog.String("thread_id", threadID),
		slog.Int("step", rec.Step),
		slog.String("decision", string(d.Kind)),
	)
	return rec, nil
}

// Seed installs a pending interrupt recovered from a checkpoint.
// Unlike Pause it is idempotent: re-seeding the same record is a no-op.
func (c *Controller) Seed(ctx context.Context, rec *Record) error {
	existing, err := c.store.Get(ctx, rec.ThreadID)
	if err == nil {
		if existing.Step == rec.Step {
			return nil
		}
		if delErr := c.store.Delete(ctx, rec.ThreadID); delErr != nil {
			return delErr
		}
	}
	return c.store.Put(ctx, rec)
}
