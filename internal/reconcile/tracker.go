package reconcile

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/queue"
)

// DefaultCleanupDelay is how long a terminal state stays visible before the
// tracker forgets the prospect. Long enough for the UI to show the outcome.
const DefaultCleanupDelay = 5 * time.Second

// EffectFunc receives the side effects each transition produces.
type EffectFunc func(prospectID string, effects []Effect)

// Tracker owns one State per prospect and feeds every input source through
// the pure transition functions.
type Tracker struct {
	mu     sync.Mutex
	states map[string]State
	timers map[string]*time.Timer

	cleanupDelay time.Duration
	onEffects    EffectFunc
	log          *zap.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithCleanupDelay overrides how long terminal states linger.
func WithCleanupDelay(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.cleanupDelay = d }
}

// WithEffectFunc registers the effect sink.
func WithEffectFunc(fn EffectFunc) TrackerOption {
	return func(t *Tracker) { t.onEffects = fn }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		states:       make(map[string]State),
		timers:       make(map[string]*time.Timer),
		cleanupDelay: DefaultCleanupDelay,
		log:          zap.L().With(zap.String("component", "reconcile.tracker")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track registers a prospect, creating its idle state if absent.
func (t *Tracker) Track(prospectID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[prospectID]
	if !ok {
		s = NewState(prospectID)
		t.states[prospectID] = s
	}
	return s
}

// Get returns the current state for a prospect, and whether it is tracked.
func (t *Tracker) Get(prospectID string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[prospectID]
	return s, ok
}

// HandleEvent runs one stream event through the transition function.
func (t *Tracker) HandleEvent(ev events.Event) {
	t.mu.Lock()
	s, ok := t.states[ev.ProspectID]
	if !ok {
		s = NewState(ev.ProspectID)
	}
	next, effects := Apply(s, ev)
	t.states[ev.ProspectID] = next
	if next.Status.Terminal() {
		t.scheduleCleanupLocked(ev.ProspectID)
	}
	t.mu.Unlock()

	t.runEffects(ev.ProspectID, effects)
}

// HandleStreamLost records a dropped stream for a prospect.
func (t *Tracker) HandleStreamLost(prospectID string) {
	t.mu.Lock()
	s, ok := t.states[prospectID]
	if !ok {
		t.mu.Unlock()
		return
	}
	next, effects := StreamLost(s)
	t.states[prospectID] = next
	t.mu.Unlock()

	t.log.Warn("progress stream lost", zap.String("prospect_id", prospectID))
	t.runEffects(prospectID, effects)
}

// HandleSnapshot reconciles every tracked prospect against a queue snapshot.
func (t *Tracker) HandleSnapshot(st queue.Status) {
	type pending struct {
		prospectID string
		effects    []Effect
	}
	var out []pending

	t.mu.Lock()
	for id, s := range t.states {
		next, effects := ApplySnapshot(s, st)
		t.states[id] = next
		if next.Status.Terminal() && !s.Status.Terminal() {
			t.scheduleCleanupLocked(id)
		}
		if len(effects) > 0 {
			out = append(out, pending{prospectID: id, effects: effects})
		}
	}
	t.mu.Unlock()

	for _, p := range out {
		t.runEffects(p.prospectID, p.effects)
	}
}

// Activity reports the busiest status across tracked prospects.
func (t *Tracker) Activity() Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	activity := ActivityIdle
	for _, s := range t.states {
		switch s.Status {
		case StatusProcessing:
			return ActivityProcessing
		case StatusQueued:
			activity = ActivityQueued
		}
	}
	return activity
}

// Stop cancels all pending cleanup timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) scheduleCleanupLocked(prospectID string) {
	if timer, ok := t.timers[prospectID]; ok {
		timer.Stop()
	}
	t.timers[prospectID] = time.AfterFunc(t.cleanupDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.states, prospectID)
		delete(t.timers, prospectID)
	})
}

func (t *Tracker) runEffects(prospectID string, effects []Effect) {
	if len(effects) == 0 || t.onEffects == nil {
		return
	}
	t.onEffects(prospectID, effects)
}
