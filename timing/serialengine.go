package timing

import (
	"fmt"
	"log"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/fieldsync/hooking"
)

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	Scheduler

	// Schedule registers an event to happen in the future.
	Schedule(e Event)

	// Run will process all the events until the queue drains.
	Run() error

	// RunUntil processes every event up to and including time t, then moves
	// the clock to t.
	RunUntil(t time.Duration) error

	// Advance moves the clock forward by d, processing the events on the way.
	Advance(d time.Duration) error

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()
}

// A SerialEngine is an Engine that always run events one after another. Time
// only moves when Run, RunUntil or Advance is called.
type SerialEngine struct {
	hooking.HookableBase

	timeLock       sync.RWMutex
	time           time.Duration
	queue          EventQueue
	secondaryQueue EventQueue

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

// NewSerialEngine creates a SerialEngine
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.queue = NewEventQueue()
	e.secondaryQueue = NewEventQueue()

	return e
}

// Name returns the name of the engine.
func (e *SerialEngine) Name() string {
	return "SerialEngine"
}

// Schedule register an event to be happen in the future
func (e *SerialEngine) Schedule(evt Event) {
	now := e.readNow()
	if evt.Time() < now {
		log.Panicf("scheduling an event earlier than current time, evt %s @ %s, now %s",
			reflect.TypeOf(evt), evt.Time(), now)
	}

	if evt.IsSecondary() {
		e.secondaryQueue.Push(evt)

		return
	}

	e.queue.Push(evt)
}

// AfterFunc schedules f to run d after the current virtual time. The callback
// runs on the goroutine that drives the engine.
func (e *SerialEngine) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}

	evt := &funcEvent{
		EventBase: MakeEventBase(e.readNow()+d, nil),
		f:         f,
	}
	evt.handler = evt

	e.Schedule(evt)

	return evt
}

// Pending returns the number of events that are still queued, including
// stopped timers that have not been dropped yet.
func (e *SerialEngine) Pending() int {
	return e.queue.Len() + e.secondaryQueue.Len()
}

func (e *SerialEngine) readNow() time.Duration {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t time.Duration) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Run processes all the events scheduled in the SerialEngine
func (e *SerialEngine) Run() error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for !e.noMoreEvent() {
		if err := e.step(); err != nil {
			return err
		}
	}

	return nil
}

// RunUntil processes the events whose time is not later than t and leaves the
// clock at t.
func (e *SerialEngine) RunUntil(t time.Duration) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for !e.noMoreEvent() && e.peekNextEvent().Time() <= t {
		if err := e.step(); err != nil {
			return err
		}
	}

	if t > e.readNow() {
		e.writeNow(t)
	}

	return nil
}

// Advance moves the virtual clock forward by d.
func (e *SerialEngine) Advance(d time.Duration) error {
	return e.RunUntil(e.readNow() + d)
}

func (e *SerialEngine) step() error {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	evt := e.nextEvent()
	if fe, ok := evt.(*funcEvent); ok && fe.isStopped() {
		return nil
	}

	now := e.readNow()
	if evt.Time() < now {
		log.Panicf(
			"cannot run event in the past, evt %s @ %s, now %s",
			reflect.TypeOf(evt), evt.Time(), now,
		)
	}

	e.writeNow(evt.Time())

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	err := evt.Handler().Handle(evt)

	hookCtx.Pos = HookPosAfterEvent
	hookCtx.Detail = err
	e.InvokeHook(hookCtx)

	if err != nil {
		return fmt.Errorf("handling %s @ %s: %w", reflect.TypeOf(evt), evt.Time(), err)
	}

	return nil
}

func (e *SerialEngine) noMoreEvent() bool {
	return e.queue.Len() == 0 && e.secondaryQueue.Len() == 0
}

func (e *SerialEngine) peekNextEvent() Event {
	if e.queue.Len() == 0 {
		return e.secondaryQueue.Peek()
	}

	if e.secondaryQueue.Len() == 0 {
		return e.queue.Peek()
	}

	primaryEvt := e.queue.Peek()
	secondaryEvt := e.secondaryQueue.Peek()

	if primaryEvt.Time() <= secondaryEvt.Time() {
		return primaryEvt
	}

	return secondaryEvt
}

func (e *SerialEngine) nextEvent() Event {
	if e.queue.Len() == 0 {
		return e.secondaryQueue.Pop()
	}

	if e.secondaryQueue.Len() == 0 {
		return e.queue.Pop()
	}

	primaryEvt := e.queue.Peek()
	secondaryEvt := e.secondaryQueue.Peek()

	if primaryEvt.Time() <= secondaryEvt.Time() {
		e.queue.Pop()
		return primaryEvt
	}

	e.secondaryQueue.Pop()

	return secondaryEvt
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// Now returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) Now() time.Duration {
	return e.readNow()
}

// funcEvent is the event behind AfterFunc. It is its own handler and its own
// Timer.
type funcEvent struct {
	EventBase

	f     func()
	state atomic.Int32
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

func (e *funcEvent) isStopped() bool {
	return e.state.Load() == timerStopped
}

func (e *funcEvent) Handle(Event) error {
	if !e.state.CompareAndSwap(timerPending, timerFired) {
		return nil
	}

	e.f()

	return nil
}

// Stop cancels the callback if it has not run yet.
func (e *funcEvent) Stop() bool {
	return e.state.CompareAndSwap(timerPending, timerStopped)
}
