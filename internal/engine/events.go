package engine

import (
	"sync"
	"time"

	"github.com/Klingon-tech/truthstamp/internal/log"
	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// EventKind names a state change.
type EventKind string

const (
	EventClaimSubmitted     EventKind = "claim_submitted"
	EventExpertRegistered   EventKind = "expert_registered"
	EventExpertUnregistered EventKind = "expert_unregistered"
	EventStakeToppedUp      EventKind = "stake_topped_up"
	EventReviewSubmitted    EventKind = "review_submitted"
	EventClaimFinalized     EventKind = "claim_finalized"
	EventSettled            EventKind = "settled"
	EventAppealFiled        EventKind = "appeal_filed"
	EventAppealResolved     EventKind = "appeal_resolved"
)

// Event describes a committed state change. Fields that do not apply to a
// kind are left zero.
type Event struct {
	Kind     EventKind     `json:"kind"`
	At       time.Time     `json:"at"`
	ClaimID  uint64        `json:"claim_id,omitempty"`
	ReviewID uint64        `json:"review_id,omitempty"`
	Address  types.Address `json:"address,omitzero"`
	Amount   uint64        `json:"amount,omitempty"`
	Verdict  types.Verdict `json:"verdict,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

const defaultSubscriberCapacity = 256

// Bus fans committed events out to subscribers. A subscriber that falls
// behind loses its oldest events rather than blocking the engine.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// Subscription is an active event feed.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close ends the subscription and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a feed buffering up to capacity events. A capacity
// of zero or less uses the default.
func (b *Bus) Subscribe(capacity int) Subscription {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	sub := &subscriber{ch: make(chan Event, capacity)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			sub.close()
		},
	}
}

func (b *Bus) publish(ev Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	for _, s := range subs {
		s.deliver(ev)
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscriber) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
		return
	default:
	}
	dropped := <-s.ch
	log.Engine.Warn().Str("event", string(dropped.Kind)).Msg("Subscriber queue full, dropped oldest event")
	s.ch <- ev
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
