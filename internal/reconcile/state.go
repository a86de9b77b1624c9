// Package reconcile merges push events and poll snapshots into one
// per-prospect enhancement view. The transition logic is pure: Apply takes
// a state and an event and returns the next state plus the side effects to
// run, so it can be tested without any transport attached.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/queue"
)

// Status is the client-side view of a prospect's enhancement, mirroring job
// status plus idle (no job exists).
type Status string

const (
	StatusIdle       Status = "idle"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	default:
		return false
	}
}

// StepProgress records one field group's outcome within the current job.
type StepProgress struct {
	Completed bool
	Skipped   bool
	Failed    bool
	Error     string
	Data      map[string]any
}

// State is the derived, ephemeral view of one prospect's enhancement. It is
// never authoritative; the queue snapshot is.
type State struct {
	ProspectID     string
	Status         Status
	QueuePosition  int
	QueueSize      int
	CurrentStep    string
	Progress       map[model.FieldGroup]StepProgress
	Error          string
	StreamActive   bool
	ConnectionLost bool
}

// NewState returns the idle state for a prospect.
func NewState(prospectID string) State {
	return State{
		ProspectID: prospectID,
		Status:     StatusIdle,
		Progress:   make(map[model.FieldGroup]StepProgress),
	}
}

// EffectKind classifies a side effect the caller should run after a
// transition.
type EffectKind string

const (
	// EffectNotify shows a user-facing notice.
	EffectNotify EffectKind = "notify"
	// EffectRefreshProspect re-reads the prospect record because a field
	// group's data changed.
	EffectRefreshProspect EffectKind = "refresh_prospect"
	// EffectConnectionLost surfaces the distinct "stream dropped" notice.
	EffectConnectionLost EffectKind = "connection_lost"
)

// NotifyLevel grades a notify effect.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
)

// Effect is one side effect produced by a transition.
type Effect struct {
	Kind    EffectKind
	Level   NotifyLevel
	Message string
	Group   model.FieldGroup
}

// stepLabels are the human-readable step names shown while a group runs.
var stepLabels = map[model.FieldGroup]string{
	model.FieldGroupValues:   "Estimating contract value",
	model.FieldGroupContacts: "Finding points of contact",
	model.FieldGroupNAICS:    "Classifying NAICS",
	model.FieldGroupTitles:   "Rewriting title",
}

// StepLabel returns the display label for a field group.
func StepLabel(group model.FieldGroup) string {
	if l, ok := stepLabels[group]; ok {
		return l
	}
	return string(group)
}

// Apply transitions a state by one event. It never mutates its input; the
// returned effects are for the caller to run.
func Apply(s State, ev events.Event) (State, []Effect) {
	next := cloneState(s)
	var effects []Effect

	if group, phase, ok := splitStepEvent(ev.Type); ok {
		switch phase {
		case phaseStarted:
			next.Status = StatusProcessing
			next.CurrentStep = StepLabel(group)
		case phaseCompleted:
			next.Progress[group] = StepProgress{
				Completed: true,
				Skipped:   boolData(ev.Data, "skipped"),
				Data:      mapData(ev.Data, "data"),
			}
			if !boolData(ev.Data, "skipped") {
				effects = append(effects, Effect{Kind: EffectRefreshProspect, Group: group})
			}
		case phaseFailed:
			next.Progress[group] = StepProgress{
				Failed: true,
				Error:  stringData(ev.Data, "error"),
			}
		}
		return next, effects
	}

	switch ev.Type {
	case events.TypeConnected:
		next.StreamActive = true
		next.ConnectionLost = false

	case events.TypeQueuePositionUpdate:
		if next.Status != StatusProcessing {
			next.Status = StatusQueued
		}
		next.QueuePosition = intData(ev.Data, "position")
		next.QueueSize = intData(ev.Data, "queue_size")

	case events.TypeProcessingStarted:
		next.Status = StatusProcessing
		next.QueuePosition = 0

	case events.TypeCompleted:
		next.Status = StatusCompleted
		next.CurrentStep = ""
		effects = append(effects, Effect{
			Kind:    EffectNotify,
			Level:   NotifySuccess,
			Message: "Enhancement completed",
		})

	case events.TypeFailed:
		next.Status = StatusFailed
		next.CurrentStep = ""
		next.Error = stringData(ev.Data, "error")
		effects = append(effects, Effect{
			Kind:    EffectNotify,
			Level:   NotifyError,
			Message: failureMessage(next.Error),
		})

	case events.TypeTimeout:
		next.Status = StatusTimedOut
		next.CurrentStep = ""
		next.Error = stringData(ev.Data, "error")
		effects = append(effects, Effect{
			Kind:    EffectNotify,
			Level:   NotifyError,
			Message: "Enhancement timed out",
		})

	case events.TypeKeepalive:
		// Nothing to do; the event only holds the connection open.
	}

	return next, effects
}

// StreamLost marks the state after its event stream dropped. Per policy the
// stream is not re-opened: polling takes over and the user sees a
// connection-lost notice, not an enhancement failure.
func StreamLost(s State) (State, []Effect) {
	next := cloneState(s)
	next.StreamActive = false
	if next.Status.Terminal() {
		return next, nil
	}
	next.ConnectionLost = true
	return next, []Effect{{
		Kind:    EffectConnectionLost,
		Level:   NotifyInfo,
		Message: "Connection lost, refresh to see latest",
	}}
}

// ApplySnapshot reconciles a state against a queue snapshot: it restores the
// queue position for a pending job and recovers the outcome of a job whose
// terminal event was missed.
func ApplySnapshot(s State, st queue.Status) (State, []Effect) {
	next := cloneState(s)

	if st.CurrentItem != nil && st.CurrentItem.ProspectID == s.ProspectID {
		next.Status = StatusProcessing
		next.QueuePosition = 0
		return next, nil
	}

	for _, item := range st.PendingItems {
		if item.ProspectID != s.ProspectID {
			continue
		}
		if next.Status != StatusProcessing {
			next.Status = StatusQueued
		}
		next.QueuePosition = item.Position
		next.QueueSize = st.QueueSize
		return next, nil
	}

	// Not pending and not current: check whether the job finished while no
	// stream was attached.
	if s.Status.Terminal() || s.Status == StatusIdle {
		return next, nil
	}
	for _, item := range st.RecentCompleted {
		if item.ProspectID != s.ProspectID {
			continue
		}
		var effects []Effect
		switch item.Status {
		case model.JobStatusCompleted:
			next.Status = StatusCompleted
			effects = append(effects, Effect{Kind: EffectNotify, Level: NotifySuccess, Message: "Enhancement completed"})
			effects = append(effects, Effect{Kind: EffectRefreshProspect})
		case model.JobStatusFailed:
			next.Status = StatusFailed
			next.Error = item.ErrorMessage
			effects = append(effects, Effect{Kind: EffectNotify, Level: NotifyError, Message: failureMessage(item.ErrorMessage)})
		case model.JobStatusCancelled:
			next.Status = StatusCancelled
		}
		next.CurrentStep = ""
		next.QueuePosition = 0
		return next, effects
	}

	return next, nil
}

func failureMessage(detail string) string {
	if detail == "" {
		return "Enhancement failed"
	}
	return fmt.Sprintf("Enhancement failed: %s", detail)
}

// step event parsing

type stepPhase int

const (
	phaseStarted stepPhase = iota
	phaseCompleted
	phaseFailed
)

// splitStepEvent decomposes a per-group event type like "naics_started".
func splitStepEvent(t events.Type) (model.FieldGroup, stepPhase, bool) {
	s := string(t)
	var phase stepPhase
	var prefix string
	switch {
	case strings.HasSuffix(s, "_started"):
		phase = phaseStarted
		prefix = strings.TrimSuffix(s, "_started")
	case strings.HasSuffix(s, "_completed"):
		phase = phaseCompleted
		prefix = strings.TrimSuffix(s, "_completed")
	case strings.HasSuffix(s, "_failed"):
		phase = phaseFailed
		prefix = strings.TrimSuffix(s, "_failed")
	default:
		return "", 0, false
	}

	group := model.FieldGroup(prefix)
	if !model.IsValidFieldGroup(group) {
		return "", 0, false
	}
	return group, phase, true
}

// data helpers; event payloads arrive as map[string]any, with numbers as
// float64 when they crossed a JSON boundary and int when they did not.

func boolData(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func stringData(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func mapData(data map[string]any, key string) map[string]any {
	v, _ := data[key].(map[string]any)
	return v
}

func intData(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func cloneState(s State) State {
	next := s
	next.Progress = make(map[model.FieldGroup]StepProgress, len(s.Progress))
	for k, v := range s.Progress {
		next.Progress[k] = v
	}
	return next
}
