package timing

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sarchlab/fieldsync/hooking"
)

// An Event is something going to happen in the future.
type Event interface {
	// Return the time that the event should happen
	Time() time.Duration

	// Returns the handler that can should handle the event
	Handler() Handler

	// IsSecondary tells if the event is a secondary event. Secondary event are
	// handled after all same-time primary events are handled.
	IsSecondary() bool
}

// HookPosBeforeEvent is a hook position that triggers before handling an event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

var lastEventID atomic.Uint64

func nextEventID() string {
	return strconv.FormatUint(lastEventID.Add(1), 10)
}

// EventBase provides the basic fields and getters for other events
type EventBase struct {
	ID        string
	time      time.Duration
	handler   Handler
	secondary bool
}

// NewEventBase creates a new EventBase
func NewEventBase(t time.Duration, handler Handler) *EventBase {
	e := new(EventBase)
	e.ID = nextEventID()
	e.time = t
	e.handler = handler
	e.secondary = false

	return e
}

// MakeEventBase creates an EventBase value, for events that embed it by value.
func MakeEventBase(t time.Duration, handler Handler) EventBase {
	return *NewEventBase(t, handler)
}

// MakeSecondaryEventBase creates the EventBase of a secondary event. It runs
// after every primary event due at the same time, including primary events
// scheduled later.
func MakeSecondaryEventBase(t time.Duration, handler Handler) EventBase {
	e := MakeEventBase(t, handler)
	e.secondary = true

	return e
}

// Time return the time that the event is going to happen
func (e EventBase) Time() time.Duration {
	return e.time
}

// Handler returns the handler to handle the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// IsSecondary returns true if the event is a secondary event.
func (e EventBase) IsSecondary() bool {
	return e.secondary
}

// A Handler defines a domain for the events.
//
// One event is always constraint to one Handler, which means the event can
// only be scheduled by one handler and can only directly modify that handler.
type Handler interface {
	Handle(e Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(e Event) error

// Handle calls f(e).
func (f HandlerFunc) Handle(e Event) error {
	return f(e)
}
