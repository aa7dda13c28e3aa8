package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated  = "booking_created"
	EventBookingReserved = "booking_reserved"
	EventBookingReleased = "booking_released"
	EventBookingDeleted  = "booking_deleted"
)

// AllTypes lists every event type published by the booking service.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingReserved,
	EventBookingReleased,
	EventBookingDeleted,
}

// BookingEventPayload is the booking snapshot sent to event consumers.
type BookingEventPayload struct {
	BookingID string `json:"booking_id"`
	Room      string `json:"room"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Priority  int    `json:"priority"`
	Status    string `json:"status"`
	Owner     string `json:"owner,omitempty"`
	ChangedBy string `json:"changed_by,omitempty"`
}

// EventKey partitions booking events by booking id.
func (p BookingEventPayload) EventKey() string {
	return p.BookingID
}

// Keyed payloads provide a partition key for their event.
type Keyed interface {
	EventKey() string
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are ignored;
// handlers that need delivery guarantees must queue the event themselves.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	event := Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}
	if k, ok := payload.(Keyed); ok {
		event.Key = k.EventKey()
	}
	return event, nil
}
