package rules

import (
	"sync"
	"time"
)

// EventType names a committed change to a game.
type EventType string

const (
	EventDealt               EventType = "DEALT"
	EventCardDrawn           EventType = "CARD_DRAWN"
	EventDeckRecycled        EventType = "DECK_RECYCLED"
	EventCardsMoved          EventType = "CARDS_MOVED"
	EventPileTurnedOver      EventType = "PILE_TURNED_OVER"
	EventMovedToFoundation   EventType = "MOVED_TO_FOUNDATION"
	EventMovedFromFoundation EventType = "MOVED_FROM_FOUNDATION"
	EventUndo                EventType = "UNDO"
	EventGameWon             EventType = "GAME_WON"
	EventHintChanged         EventType = "HINT_CHANGED"
	EventDragChanged         EventType = "DRAG_CHANGED"
	EventAutoFinishOffered   EventType = "AUTO_FINISH_OFFERED"
	EventResetRequested      EventType = "RESET_REQUESTED"
)

// Mutating reports whether events of this type change the table or score.
func (et EventType) Mutating() bool {
	switch et {
	case EventDealt, EventCardDrawn, EventDeckRecycled, EventCardsMoved,
		EventPileTurnedOver, EventMovedToFoundation, EventMovedFromFoundation,
		EventUndo, EventGameWon:
		return true
	}
	return false
}

// Event describes something that happened in a game.
type Event struct {
	Type      EventType
	GameID    string
	CardID    string // card that moved, if any
	Origin    string // human readable source location
	Target    string // human readable destination location
	Amount    int    // points delta or cards moved, event dependent
	Timestamp time.Time
	Metadata  map[string]string
}

// Listener reacts to every published event.
type Listener func(Event)

// TypedListener reacts to a single event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus is a synchronous publish/subscribe hub with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns its handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for one event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener with the given handle, typed or not.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to all matching listeners on the caller's goroutine.
// Listeners are snapshotted first so they may subscribe or unsubscribe.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	all := make([]Listener, 0, len(bus.listeners))
	for _, l := range bus.listeners {
		all = append(all, l)
	}
	typed := append([]TypedListener(nil), bus.typedListeners[event.Type]...)
	bus.mu.RUnlock()

	for _, l := range all {
		l(event)
	}
	for _, l := range typed {
		l.Callback(event)
	}
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, gameID string) Event {
	return Event{
		Type:      eventType,
		GameID:    gameID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}
