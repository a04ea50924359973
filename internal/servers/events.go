package servers

import "sync"

// EventType identifies a registry mutation.
type EventType string

const (
	EventAdded               EventType = "server_added"
	EventRemoved             EventType = "server_removed"
	EventURLChanged          EventType = "server_url_changed"
	EventNameChanged         EventType = "server_name_changed"
	EventSwitched            EventType = "server_switched"
	EventLoggedInChanged     EventType = "server_logged_in_changed"
	EventOrderUpdated        EventType = "server_order_updated"
	EventPreAuthSecretChange EventType = "server_pre_auth_secret_changed"
	EventThemeChanged        EventType = "server_theme_changed"
)

// Event describes a single registry mutation. Events are published
// synchronously, in mutation order, before the mutating call returns.
type Event struct {
	Type         EventType `json:"type"`
	ServerID     string    `json:"serverId,omitempty"`
	SetAsCurrent bool      `json:"setAsCurrent,omitempty"`
	LoggedIn     bool      `json:"loggedIn,omitempty"`
	Order        []string  `json:"order,omitempty"`
}

// Listener receives registry events.
type Listener func(Event)

// Bus is a typed publish/subscribe fan-out for registry events. One
// instance is owned by the registry and handed to collaborators at
// wiring time; there is no ambient global.
type Bus struct {
	mu       sync.RWMutex
	byType   map[EventType][]Listener
	catchAll []Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{byType: make(map[EventType][]Listener)}
}

// Subscribe registers a listener for one event type.
func (b *Bus) Subscribe(t EventType, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], fn)
}

// SubscribeAll registers a listener for every event type.
func (b *Bus) SubscribeAll(fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catchAll = append(b.catchAll, fn)
}

// Publish delivers an event to all matching listeners synchronously,
// in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	listeners := append(append([]Listener(nil), b.byType[e.Type]...), b.catchAll...)
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}
