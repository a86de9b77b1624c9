// Package events implements the per-prospect progress event bus for the
// enhancement queue. Delivery is best-effort at-most-once: events published
// while no stream is subscribed are not queued, and a slow subscriber's
// events are dropped rather than blocking the worker.
package events

import (
	"time"

	"github.com/sells-group/prospect-dash/internal/model"
)

// Type identifies a progress event kind.
type Type string

const (
	TypeConnected           Type = "connected"
	TypeQueuePositionUpdate Type = "queue_position_update"
	TypeProcessingStarted   Type = "processing_started"
	TypeCompleted           Type = "completed"
	TypeFailed              Type = "failed"
	TypeTimeout             Type = "timeout"
	TypeKeepalive           Type = "keepalive"
)

// StepStarted returns the per-group start event type, e.g. "naics_started".
func StepStarted(group model.FieldGroup) Type {
	return Type(string(group) + "_started")
}

// StepCompleted returns the per-group completion event type.
func StepCompleted(group model.FieldGroup) Type {
	return Type(string(group) + "_completed")
}

// StepFailed returns the per-group failure event type.
func StepFailed(group model.FieldGroup) Type {
	return Type(string(group) + "_failed")
}

// Terminal reports whether the event ends a prospect's stream.
func (t Type) Terminal() bool {
	return t == TypeCompleted || t == TypeFailed || t == TypeTimeout
}

// Event is the JSON envelope delivered to progress streams.
type Event struct {
	Type       Type           `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	ProspectID string         `json:"prospect_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(t Type, prospectID string, data map[string]any) Event {
	return Event{
		Type:       t,
		Timestamp:  time.Now().UTC(),
		ProspectID: prospectID,
		Data:       data,
	}
}
