package service

import (
	"sync"

	"github.com/golang/glog"
)

// EventType defines the type of event
type EventType string

const (
	EventRevisionCommitted EventType = "revision_committed"
	EventRolesProvisioned  EventType = "roles_provisioned"
	EventRolesFailed       EventType = "roles_failed"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// CommittedPayload describes a new revision
type CommittedPayload struct {
	Database string `json:"database"`
	Project  string `json:"project"`
	Branch   string `json:"branch"`
	Revision string `json:"revision"`
	Author   string `json:"author"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Modified int    `json:"modified"`
}

// ProvisionedPayload summarises a roles file run
type ProvisionedPayload struct {
	Roles int    `json:"roles"`
	Users int    `json:"users"`
	Error string `json:"error,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
			glog.V(2).Infof("Dropped %s event for slow subscriber", event.Type)
		}
	}
}
