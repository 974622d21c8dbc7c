package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/interrupt"
)

// FormatVersion is the current checkpoint format version.
// Increment when making breaking changes to the checkpoint structure.
const FormatVersion = 1

// ChannelState is the persisted form of one channel at a step boundary.
type ChannelState struct {
	// Value is the JSON-serialized channel value.
	Value json.RawMessage `json:"value"`

	// Version is the channel's monotonic version counter.
	Version uint64 `json:"version"`
}

// Checkpoint is an immutable snapshot of all channel state at the boundary
// of a completed superstep. Checkpoints form a parent-linked history per
// thread; resuming loads the latest one and plans from there with no replay.
type Checkpoint struct {
	// Metadata
	Format    int       `json:"format"`
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Step      int       `json:"step"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Channel state at the step boundary.
	Channels map[string]ChannelState `json:"channels"`

	// Planner state: what this step changed and ran, so the next plan is
	// O(1) in thread history.
	UpdatedChannels []string `json:"updated_channels,omitempty"`
	RanNodes        []string `json:"ran_nodes,omitempty"`

	// Interrupt marks a pause taken before this step executed.
	// Nil once the step has actually run.
	Interrupt *interrupt.Record `json:"interrupt,omitempty"`
}

// New creates a checkpoint for a thread at a step, linked to its parent.
func New(threadID string, step int, parentID string) *Checkpoint {
	return &Checkpoint{
		Format:    FormatVersion,
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Step:      step,
		ParentID:  parentID,
		CreatedAt: time.Now().UTC(),
		Channels:  make(map[string]ChannelState),
	}
}

// SetChannels fills the channel snapshot from serialized values and versions.
func (c *Checkpoint) SetChannels(values map[string]json.RawMessage, versions map[string]uint64) *Checkpoint {
	c.Channels = make(map[string]ChannelState, len(values))
	for name, raw := range values {
		c.Channels[name] = ChannelState{Value: raw, Version: versions[name]}
	}
	return c
}

// Values returns the serialized channel values for store restoration.
func (c *Checkpoint) Values() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(c.Channels))
	for name, cs := range c.Channels {
		out[name] = cs.Value
	}
	return out
}

// Versions returns the channel versions for store restoration.
func (c *Checkpoint) Versions() map[string]uint64 {
	out := make(map[string]uint64, len(c.Channels))
	for name, cs := range c.Channels {
		out[name] = cs.Version
	}
	return out
}

// Marshal serializes the checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
