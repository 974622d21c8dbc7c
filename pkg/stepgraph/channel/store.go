// Package channel provides the versioned state slots shared by graph nodes
// and the reducers that merge concurrent writes to them.
//
// A Store owns a set of named channels. Nodes never mutate channel values in
// place: they receive a read-only View captured at the step boundary and emit
// Write proposals, which the scheduler buffers and commits through each
// channel's reducer once the whole step has finished. A channel's version
// only advances when a commit actually changes its value, which is what the
// scheduler's planner keys off.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for store operations.
var (
	// ErrUnknownChannel indicates a read or write referenced an undeclared channel.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrDuplicateChannel indicates two specs declared the same channel name.
	ErrDuplicateChannel = errors.New("duplicate channel")
)

// Spec declares one channel at graph-definition time.
type Spec struct {
	// Name is the unique channel key.
	Name string

	// Reducer merges concurrent writes. Nil defaults to LastValue.
	Reducer Reducer
}

// Write is a proposed (channel, value) update emitted by a node.
type Write struct {
	Channel string `json:"channel"`
	Value   any    `json:"value"`
}

// ReduceError wraps a reducer failure during commit.
type ReduceError struct {
	// Channel is the channel whose reducer failed.
	Channel string
	// Err is the underlying reducer error.
	Err error
}

func (e *ReduceError) Error() string {
	return fmt.Sprintf("reduce channel %s: %v", e.Channel, e.Err)
}

func (e *ReduceError) Unwrap() error { return e.Err }

// slot is the committed state of one channel.
type slot struct {
	value   any
	version uint64
	reducer Reducer
}

// proposal is one buffered write awaiting commit.
type proposal struct {
	order int // stable task ordering (node declaration index)
	seq   int // write order within the task
	value any
}

// Store holds the versioned channels for a single thread's run.
//
// The Store is safe for concurrent Propose calls from in-flight tasks.
// Commit and Restore are called only by the scheduler between steps.
type Store struct {
	mu      sync.RWMutex
	order   []string
	slots   map[string]*slot
	pending map[string][]proposal
}

// NewStore creates a store for the declared channel specs.
func NewStore(specs []Spec) (*Store, error) {
	s := &Store{
		slots:   make(map[string]*slot, len(specs)),
		pending: make(map[string][]proposal),
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("channel: spec with empty name")
		}
		if _, exists := s.slots[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, spec.Name)
		}
		r := spec.Reducer
		if r == nil {
			r = LastValue()
		}
		s.slots[spec.Name] = &slot{reducer: r}
		s.order = append(s.order, spec.Name)
	}
	return s, nil
}

// Names returns all channel names in declaration order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether a channel is declared.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.slots[name]
	return ok
}

// View captures a read-only snapshot of the named channels. Values are
// deep-copied so a task can never observe a sibling's writes mid-step.
// A nil name list yields an empty view (a node with no declared reads
// sees nothing).
func (s *Store) View(names []string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		values:   make(map[string]any, len(names)),
		versions: make(map[string]uint64, len(names)),
	}
	for _, name := range names {
		sl, ok := s.slots[name]
		if !ok {
			return View{}, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
		}
		v.values[name] = deepCopy(sl.value)
		v.versions[name] = sl.version
	}
	return v, nil
}

// ViewAll captures a read-only snapshot of every channel.
// Used for router evaluation and the final result snapshot.
func (s *Store) ViewAll() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		values:   make(map[string]any, len(s.order)),
		versions: make(map[string]uint64, len(s.order)),
	}
	for _, name := range s.order {
		sl := s.slots[name]
		v.values[name] = deepCopy(sl.value)
		v.versions[name] = sl.version
	}
	return v
}

// Propose buffers write intents from one task for the in-flight step.
// order is the stable task ordering key (node declaration index).
func (s *Store) Propose(order int, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for seq, w := range writes {
		if _, ok := s.slots[w.Channel]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, w.Channel)
		}
		s.pending[w.Channel] = append(s.pending[w.Channel], proposal{
			order: order,
			seq:   seq,
			value: w.Value,
		})
	}
	return nil
}

// PendingCount returns the number of buffered proposals across all channels.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ps := range s.pending {
		n += len(ps)
	}
	return n
}

// Discard drops all buffered proposals without applying them.
// Used when a step fails and its writes must not commit.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string][]proposal)
}

// Commit folds every buffered proposal through its channel's reducer and
// returns the names of channels whose version advanced, in declaration
// order. Proposals for one channel are ordered by (task order, write order)
// so the outcome is independent of actual task completion order.
//
// A reducer failure aborts the commit: no channel is modified and the
// buffer is discarded.
func (s *Store) Commit() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type staged struct {
		name  string
		value any
	}
	var stage []staged

	for _, name := range s.order {
		ps := s.pending[name]
		if len(ps) == 0 {
			continue
		}
		sort.SliceStable(ps, func(i, j int) bool {
			if ps[i].order != ps[j].order {
				return ps[i].order < ps[j].order
			}
			return ps[i].seq < ps[j].seq
		})
		batch := make([]any, len(ps))
		for i, p := range ps {
			batch[i] = p.value
		}

		sl := s.slots[name]
		next, err := sl.reducer.Reduce(sl.value, batch)
		if err != nil {
			s.pending = make(map[string][]proposal)
			return nil, &ReduceError{Channel: name, Err: err}
		}
		stage = append(stage, staged{name: name, value: next})
	}

	var changed []string
	for _, st := range stage {
		sl := s.slots[st.name]
		if !equalValue(sl.value, st.value) {
			sl.value = st.value
			sl.version++
			changed = append(changed, st.name)
		}
	}

	s.pending = make(map[string][]proposal)
	return changed, nil
}

// Apply commits a batch of writes directly, outside any task. Used by the
// scheduler for caller input and interrupt edits. Returns changed channels.
func (s *Store) Apply(writes []Write) ([]string, error) {
	if err := s.Propose(0, writes); err != nil {
		return nil, err
	}
	return s.Commit()
}

// Snapshot returns a deep copy of all current channel values.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.slots))
	for name, sl := range s.slots {
		out[name] = deepCopy(sl.value)
	}
	return out
}

// Versions returns the current version of every channel.
func (s *Store) Versions() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.slots))
	for name, sl := range s.slots {
		out[name] = sl.version
	}
	return out
}

// MarshalValues serializes every channel value to JSON for checkpointing.
func (s *Store) MarshalValues() (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.slots))
	for name, sl := range s.slots {
		data, err := json.Marshal(sl.value)
		if err != nil {
			return nil, fmt.Errorf("marshal channel %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Restore replaces channel values and versions from a checkpoint.
// Channels absent from the snapshot keep their zero state; snapshot keys
// not declared on this store are an error (the graph changed shape).
func (s *Store) Restore(values map[string]json.RawMessage, versions map[string]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, raw := range values {
		sl, ok := s.slots[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("unmarshal channel %s: %w", name, err)
		}
		sl.value = v
		sl.version = versions[name]
	}
	s.pending = make(map[string][]proposal)
	return nil
}
