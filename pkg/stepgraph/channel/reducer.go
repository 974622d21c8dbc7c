package channel

import (
	"fmt"
	"reflect"
	"sync"
)

// Reducer merges the write proposals buffered for one channel during a
// superstep into a single new value.
//
// Reducers must be pure: the same current value and write batch always
// produce the same result. Within a step the engine presents writes in a
// stable order (node declaration order), but reducers should tolerate any
// ordering - associative/commutative merges like append or set-union are
// the intended shape.
type Reducer interface {
	// Name returns the registry name of the reducer (e.g. "append").
	Name() string

	// Reduce folds a batch of proposed writes into the current value.
	// current is nil for a channel that has never been written.
	Reduce(current any, writes []any) (any, error)
}

// reducerFunc adapts a plain function to the Reducer interface.
type reducerFunc struct {
	name string
	fn   func(current any, writes []any) (any, error)
}

func (r reducerFunc) Name() string { return r.name }

func (r reducerFunc) Reduce(current any, writes []any) (any, error) {
	return r.fn(current, writes)
}

// Func creates a custom reducer from a function.
// The name is used for registry lookup and checkpoint diagnostics.
func Func(name string, fn func(current any, writes []any) (any, error)) Reducer {
	if name == "" {
		panic("channel: reducer name cannot be empty")
	}
	if fn == nil {
		panic("channel: reducer function cannot be nil")
	}
	return reducerFunc{name: name, fn: fn}
}

// Append returns the built-in append reducer. The channel value is a
// []any sequence; each committed write is appended in submission order.
func Append() Reducer {
	return reducerFunc{name: "append", fn: reduceAppend}
}

// LastValue returns the built-in overwrite reducer. The last write in the
// stable task ordering wins. This is the default for channels declared
// without an explicit reducer.
func LastValue() Reducer {
	return reducerFunc{name: "last", fn: reduceLast}
}

// SetUnion returns the built-in set-union reducer. The channel value is a
// []any with duplicate elements (by deep equality) collapsed; existing
// elements keep their position, new ones append in submission order.
func SetUnion() Reducer {
	return reducerFunc{name: "union", fn: reduceUnion}
}

func reduceAppend(current any, writes []any) (any, error) {
	seq, err := asSequence(current)
	if err != nil {
		return nil, fmt.Errorf("append reducer: %w", err)
	}
	return append(seq, writes...), nil
}

func reduceLast(current any, writes []any) (any, error) {
	if len(writes) == 0 {
		return current, nil
	}
	return writes[len(writes)-1], nil
}

func reduceUnion(current any, writes []any) (any, error) {
	seq, err := asSequence(current)
	if err != nil {
		return nil, fmt.Errorf("union reducer: %w", err)
	}
	for _, w := range writes {
		if !containsDeep(seq, w) {
			seq = append(seq, w)
		}
	}
	return seq, nil
}

// asSequence normalizes a channel value to []any for sequence reducers.
// A nil current value is an empty sequence. The slice is copied so the
// reducer never aliases a committed value.
func asSequence(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("channel value is %T, want []any", v)
	}
	out := make([]any, len(seq))
	copy(out, seq)
	return out, nil
}

func containsDeep(seq []any, v any) bool {
	for _, e := range seq {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// registry maps reducer names to factories so configuration files can
// declare channels by reducer name.
var (
	registryMu sync.RWMutex
	registry   = map[string]func() Reducer{
		"append": Append,
		"last":   LastValue,
		"union":  SetUnion,
	}
)

// RegisterReducer adds a named reducer factory to the registry.
// Returns an error if the name is already taken.
func RegisterReducer(name string, factory func() Reducer) error {
	if name == "" {
		return fmt.Errorf("channel: reducer name is required")
	}
	if factory == nil {
		return fmt.Errorf("channel: reducer factory is required")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("channel: reducer %q already registered", name)
	}
	registry[name] = factory
	return nil
}

// MustRegisterReducer registers a named reducer factory, panicking on error.
func MustRegisterReducer(name string, factory func() Reducer) {
	if err := RegisterReducer(name, factory); err != nil {
		panic(err)
	}
}

// LookupReducer returns a new reducer instance for a registered name.
func LookupReducer(name string) (Reducer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
