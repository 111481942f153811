package calendar

import (
	"sync"
	"time"
)

const (
	EventSessionRequested      = "SESSION_REQUESTED"
	EventSessionAccepted       = "SESSION_ACCEPTED"
	EventSessionRejected       = "SESSION_REJECTED"
	EventSessionCompleted      = "SESSION_COMPLETED"
	EventSessionNoShow         = "SESSION_NO_SHOW"
	EventUnavailabilityMarked  = "UNAVAILABILITY_MARKED"
	EventUnavailabilityCleared = "UNAVAILABILITY_CLEARED"
	EventRuleAdded             = "RULE_ADDED"
	EventRuleRemoved           = "RULE_REMOVED"
)

// Event is a committed calendar mutation. Events are published strictly
// after the aggregate has been saved; delivery is the subscriber's
// problem and never affects committed state.
type Event struct {
	Type       string    `json:"type"`
	ProviderID string    `json:"provider_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Date       string    `json:"date,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus fans committed events out to registered subscribers in
// subscription order. It replaces ambient cross-view state: projections
// and dashboards learn about mutations here, not from shared globals.
type Bus struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
