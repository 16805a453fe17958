// Package realtime implements the fan-out bus that routes events to groups of
// connected sessions: one group per delivery, one per chat room, one per user,
// and a global group for all online drivers. Delivery is best-effort
// at-most-once; a reconnecting client must re-fetch state instead of relying
// on buffered events.
package realtime

import (
	"encoding/json"
	"sync"
)

// Event type discriminators carried in the "type" field of every envelope.
const (
	EventChatMessage     = "chat_message"
	EventChatHistory     = "chat_history"
	EventLocationUpdate  = "location_update"
	EventStatusUpdate    = "status_update"
	EventNotification    = "notification"
	EventDeliveryRequest = "delivery_request"
	EventDeliveryTaken   = "delivery_taken"
	EventDriverStatus    = "driver_status"
)

// DriversGroup is the global group every online driver's session joins.
const DriversGroup = "drivers"

// DeliveryGroup names the group carrying tracking and status events for one
// delivery.
func DeliveryGroup(deliveryID string) string { return "delivery:" + deliveryID }

// ChatGroup names the group carrying messages for one chat room.
func ChatGroup(roomID string) string { return "chat:" + roomID }

// UserGroup names a user's personal notification group.
func UserGroup(userID string) string { return "user:" + userID }

// Event is one bus message: a type discriminator plus payload fields. It
// marshals flat, e.g. {"type":"location_update","lat":...,"lng":...}.
type Event struct {
	Type string
	Data map[string]any
}

// NewEvent builds an event from a discriminator and payload fields.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Data: data}
}

// MarshalJSON flattens the payload next to the type field.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		flat[k] = v
	}
	flat["type"] = e.Type
	return json.Marshal(flat)
}

// Bus is the group fan-out abstraction. Both backends are safe for concurrent
// use from many sessions. Events published by one actor in program order reach
// every current subscriber of the group in that order; there is no cross-group
// ordering and no redelivery.
type Bus interface {
	// Subscribe adds the handle to the group.
	Subscribe(group string, sub *Subscriber)
	// Unsubscribe removes the handle from the group.
	Unsubscribe(group string, sub *Subscriber)
	// Publish delivers the event to every handle currently subscribed to the
	// group. Handles that are gone or saturated are skipped silently.
	Publish(group string, event Event) error
}

// Subscriber is one session's handle on the bus. Events arrive pre-marshalled
// on C. The owning session closes the handle when the connection ends.
type Subscriber struct {
	ch     chan []byte
	mu     sync.Mutex
	closed bool
}

// NewSubscriber creates a handle with the given delivery buffer.
func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &Subscriber{ch: make(chan []byte, buffer)}
}

// C is the receive side of the handle.
func (s *Subscriber) C() <-chan []byte { return s.ch }

// Close releases the handle. Safe to call once the handle is unsubscribed
// from every group; subsequent deliveries are dropped.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// push hands data to the subscriber without blocking. A full buffer means the
// client is stalled; the event is dropped rather than holding up the group.
func (s *Subscriber) push(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- data:
	default:
	}
}
