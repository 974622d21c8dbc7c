package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemorySaver is an in-memory checkpoint saver for tests and development.
// Data is lost when the process exits.
type MemorySaver struct {
	mu     sync.RWMutex
	data   map[string]map[int][]byte // threadID -> step -> marshaled checkpoint
	closed bool
}

// NewMemorySaver creates a new in-memory checkpoint saver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{data: make(map[string]map[int][]byte)}
}

// Save implements Saver. Checkpoints are stored marshaled so callers can
// never mutate a saved snapshot through a retained pointer.
func (m *MemorySaver) Save(_ context.Context, cp *Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSaverClosed
	}
	if m.data[cp.ThreadID] == nil {
		m.data[cp.ThreadID] = make(map[int][]byte)
	}
	m.data[cp.ThreadID][cp.Step] = data
	return nil
}

// LoadLatest implements Saver.
func (m *MemorySaver) LoadLatest(_ context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrSaverClosed
	}
	steps, ok := m.data[threadID]
	if !ok || len(steps) == 0 {
		return nil, ErrNotFound
	}

	latest := -1
	for step := range steps {
		if step > latest {
			latest = step
		}
	}
	return Unmarshal(steps[latest])
}

// Load implements Saver.
func (m *MemorySaver) Load(_ context.Context, threadID string, step int) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrSaverClosed
	}
	steps, ok := m.data[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := steps[step]
	if !ok {
		return nil, ErrNotFound
	}
	return Unmarshal(data)
}

// List implements Saver.
func (m *MemorySaver) List(_ context.Context, threadID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrSaverClosed
	}
	steps, ok := m.data[threadID]
	if !ok {
		return []Info{}, nil
	}

	infos := make([]Info, 0, len(steps))
	for step, data := range steps {
		cp, err := Unmarshal(data)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			ID:        cp.ID,
			ThreadID:  threadID,
			Step:      step,
			ParentID:  cp.ParentID,
			CreatedAt: cp.CreatedAt,
			Size:      int64(len(data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Step > infos[j].Step })
	return infos, nil
}

// DeleteThread implements Saver.
func (m *MemorySaver) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSaverClosed
	}
	delete(m.data, threadID)
	return nil
}

// Close implements Saver.
func (m *MemorySaver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the total number of checkpoints across all threads.
// Useful for testing.
func (m *MemorySaver) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, steps := range m.data {
		count += len(steps)
	}
	return count
}
