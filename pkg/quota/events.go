package quota

import (
	"sync"

	"github.com/baketa-translate/core/pkg/xlate"
)

// EventKind classifies a change broadcast by the gate. Generalizes the
// spec's three named notifications (promotion changed, bonus changed,
// license updated) into one stream per session, so a single subscriber
// can observe all state transitions for that session in order.
type EventKind string

const (
	EventLicenseUpdated  EventKind = "license_updated"
	EventBonusChanged    EventKind = "bonus_changed"
	EventPromotionChanged EventKind = "promotion_changed"
)

// Event is one state-change notification, emitted after the gate
// releases the per-session critical section that produced it — never
// while holding the lock.
type Event struct {
	Kind         EventKind
	SessionToken string
	License      xlate.LicenseState
}

// Subscription is a live feed of events for one session, owned by the
// subscriber: call Close when done watching to release the channel.
type Subscription struct {
	ch     chan Event
	cancel func()
}

// Events returns the channel to range over. The channel closes when
// Close is called or the gate is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close stops delivery and releases the subscription's channel.
func (s *Subscription) Close() { s.cancel() }

// broadcaster fans one session's events out to every live subscriber,
// dropping an event for a subscriber whose channel is full rather than
// blocking the mutator that just released its lock.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return &Subscription{
		ch: ch,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		},
	}
}

func (b *broadcaster) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
