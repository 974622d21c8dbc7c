// Package stream distributes the scheduler's step events to external
// consumers: full state snapshots, changed-channel updates, and opaque
// sub-step messages emitted by node collaborators.
package stream

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of a stream event.
type Type string

// Stream event types.
const (
	// TypeValues carries the full channel snapshot after a committed step.
	TypeValues Type = "values"

	// TypeUpdates carries only the channels whose version changed in a step.
	TypeUpdates Type = "updates"

	// TypeMessages carries sub-step payloads emitted by a node's external
	// collaborator, passed through opaquely without interpretation.
	TypeMessages Type = "messages"

	// Run lifecycle events.
	TypeRunStart    Type = "run.start"
	TypeRunComplete Type = "run.complete"
	TypeRunPaused   Type = "run.paused"
	TypeRunError    Type = "run.error"
)

// Event is one item on a step event stream.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// ThreadID is the thread the event belongs to.
	ThreadID string `json:"thread_id"`

	// Step is the superstep the event was emitted at.
	Step int `json:"step"`

	// NodeID is set on messages events: the emitting node.
	NodeID string `json:"node_id,omitempty"`

	// Values is the full snapshot for values events.
	Values map[string]any `json:"values,omitempty"`

	// Updated lists changed channels for updates events.
	Updated []string `json:"updated,omitempty"`

	// Payload is the opaque body of a messages or run.error event.
	Payload any `json:"payload,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates a stream event with identity and timestamp filled in.
func NewEvent(t Type, threadID string, step int) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		ThreadID:  threadID,
		Step:      step,
		Timestamp: time.Now().UTC(),
	}
}
