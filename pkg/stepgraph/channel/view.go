package channel

import (
	"reflect"
	"sort"
)

// View is an immutable read snapshot of a set of channels, captured at a
// step boundary before any task in the step runs.
type View struct {
	values   map[string]any
	versions map[string]uint64
}

// Get returns the value of a channel in the snapshot.
// The second result is false if the channel is not part of the view.
func (v View) Get(name string) (any, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Version returns the snapshot version of a channel, or 0 if absent.
func (v View) Version(name string) uint64 {
	return v.versions[name]
}

// Names returns the channel names in the view, sorted.
func (v View) Names() []string {
	names := make([]string, 0, len(v.values))
	for name := range v.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the full snapshot map.
func (v View) Values() map[string]any {
	out := make(map[string]any, len(v.values))
	for name, val := range v.values {
		out[name] = deepCopy(val)
	}
	return out
}

// NewView builds a view directly from value and version maps.
// Intended for tests and router evaluation over committed state.
func NewView(values map[string]any, versions map[string]uint64) View {
	v := View{
		values:   make(map[string]any, len(values)),
		versions: make(map[string]uint64, len(versions)),
	}
	for name, val := range values {
		v.values[name] = deepCopy(val)
	}
	for name, ver := range versions {
		v.versions[name] = ver
	}
	return v
}

// deepCopy copies the JSON-shaped value domain (maps, slices, scalars).
// Values outside that domain are returned as-is; channel values must be
// JSON-serializable per the checkpoint contract anyway.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// equalValue reports whether a commit left a channel value unchanged.
func equalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
