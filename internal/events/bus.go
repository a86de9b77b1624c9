package events

import (
	"sync"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscription channel buffer. A subscriber that
// falls this far behind starts losing events (accepted delivery model).
const subscriberBuffer = 16

// Subscription is a handle to one prospect's event stream.
type Subscription struct {
	prospectID string
	ch         chan Event
	closeOnce  sync.Once
}

// Events returns the channel on which events arrive. The channel is closed
// when the subscription ends (terminal event or Unsubscribe).
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// ProspectID returns the prospect this subscription observes.
func (s *Subscription) ProspectID() string {
	return s.prospectID
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Bus is a publish/subscribe hub keyed by prospect ID. Many streams may
// observe one prospect; publishing with no subscribers is a no-op.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  *zap.Logger
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  zap.L().With(zap.String("component", "events.bus")),
	}
}

// Subscribe registers a new stream for a prospect.
func (b *Bus) Subscribe(prospectID string) *Subscription {
	sub := &Subscription{
		prospectID: prospectID,
		ch:         make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[prospectID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[prospectID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a stream and closes its channel. Safe to call more
// than once and after the bus has already closed the stream.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[sub.prospectID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.prospectID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// Publish delivers an event to every stream subscribed to the prospect.
// Sends never block the publisher: a full subscriber channel drops the
// event. After a terminal event the prospect's streams are closed, since no
// further events will occur for that job.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	set := b.subs[ev.ProspectID]
	var closing []*Subscription
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			b.log.Debug("dropping event for slow subscriber",
				zap.String("prospect_id", ev.ProspectID),
				zap.String("event_type", string(ev.Type)),
			)
		}
		if ev.Type.Terminal() {
			closing = append(closing, sub)
		}
	}
	if ev.Type.Terminal() && set != nil {
		delete(b.subs, ev.ProspectID)
	}
	b.mu.Unlock()

	for _, sub := range closing {
		sub.close()
	}
}

// SubscriberCount returns the number of active streams for a prospect.
func (b *Bus) SubscriberCount(prospectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[prospectID])
}
