package cache

import "time"

// EventType is a cache entry lifecycle event type
type EventType string

const (
	EventCreated     EventType = "created"
	EventEvicted     EventType = "evicted"
	EventInvalidated EventType = "invalidated"
	EventExpired     EventType = "expired"
)

// Event describes a cache entry lifecycle change, consumed by an external
// metrics collector. The cache never depends on a listener being present.
type Event struct {
	Type      EventType `json:"type"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// EventListener receives lifecycle events
type EventListener func(event Event)
