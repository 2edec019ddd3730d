// Package field keeps a locally edited value in step with an authoritative
// one. Edits are committed after a quiet period, on exit, and never for a
// record the field has already moved away from.
package field

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sarchlab/fieldsync/hooking"
	"github.com/sarchlab/fieldsync/timing"
)

// State is the commit state of a field.
type State int

const (
	// StateIdle means no commit is scheduled.
	StateIdle State = iota

	// StatePendingCommit means a debounce timer is live.
	StatePendingCommit

	// StateDisposed means the field was torn down.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingCommit:
		return "pending-commit"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Hook positions of a Controller. Commit, Discard and Resync hooks carry a
// CommitRecord as the item.
var (
	HookPosEdit     = &hooking.HookPos{Name: "FieldEdit"}
	HookPosSchedule = &hooking.HookPos{Name: "FieldSchedule"}
	HookPosCommit   = &hooking.HookPos{Name: "FieldCommit"}
	HookPosDiscard  = &hooking.HookPos{Name: "FieldDiscard"}
	HookPosResync   = &hooking.HookPos{Name: "FieldResync"}
	HookPosExit     = &hooking.HookPos{Name: "FieldExit"}
	HookPosDispose  = &hooking.HookPos{Name: "FieldDispose"}
)

// Controller is a debounced editable field bound to one identity at a time.
//
// All methods are safe to call from multiple goroutines, but the field is
// meant to be driven from one place: the host's edit, exit and teardown
// events map 1:1 onto Edit, Exit and Dispose.
type Controller[K comparable] struct {
	hooking.HookableBase

	name       string
	quiescence time.Duration
	scheduler  timing.Scheduler
	committer  Committer[K]
	normalize  func(string) string
	logger     *slog.Logger

	lock          sync.Mutex
	identity      K
	source        string
	value         string
	lastCommitted string
	timer         timing.Timer
	timerSeq      uint64
	disposed      bool

	// delivering counts commits handed out but not yet returned by the
	// committer.
	delivering sync.WaitGroup
}

// Name returns the name of the field.
func (c *Controller[K]) Name() string {
	return c.name
}

// Quiescence returns the debounce window.
func (c *Controller[K]) Quiescence() time.Duration {
	return c.quiescence
}

// Identity returns the identity the field is bound to.
func (c *Controller[K]) Identity() K {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.identity
}

// Value returns the local value.
func (c *Controller[K]) Value() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.value
}

// Source returns the last value the field was told is authoritative.
func (c *Controller[K]) Source() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.source
}

// LastCommitted returns the last value handed to the committer, or "" if
// nothing was committed yet.
func (c *Controller[K]) LastCommitted() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.lastCommitted
}

// State returns the commit state.
func (c *Controller[K]) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stateLocked()
}

// Pending tells if a debounce timer is live.
func (c *Controller[K]) Pending() bool {
	return c.State() == StatePendingCommit
}

func (c *Controller[K]) stateLocked() State {
	switch {
	case c.disposed:
		return StateDisposed
	case c.timer != nil:
		return StatePendingCommit
	default:
		return StateIdle
	}
}

// SetSource rebinds the field. Every call is treated as a possible identity
// change: the pending commit, if any, is dropped without firing and the local
// value is replaced by source.
func (c *Controller[K]) SetSource(identity K, source string) {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return
	}

	wasPending := c.cancelPendingLocked()
	discarded := CommitRecord{
		Field:    c.name,
		Identity: c.identity,
		Value:    c.value,
		Time:     c.scheduler.Now(),
	}

	source = c.normalize(source)
	c.identity = identity
	c.source = source
	c.value = source

	resync := CommitRecord{
		Field:    c.name,
		Identity: identity,
		Value:    source,
		Time:     discarded.Time,
	}
	c.lock.Unlock()

	if wasPending {
		c.logger.Debug("pending commit discarded",
			slog.String("identity", fmt.Sprint(discarded.Identity)))
		c.invoke(HookPosDiscard, discarded)
	}

	c.invoke(HookPosResync, resync)
}

// Acknowledge records that value has been persisted for identity. Only the
// source value moves: a pending commit and the local value are left alone, so
// an acknowledgement that races with new edits never loses them. It reports
// whether the acknowledgement applied to the current binding.
func (c *Controller[K]) Acknowledge(identity K, value string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.disposed || identity != c.identity {
		return false
	}

	c.source = value

	return true
}

// Edit replaces the local value and restarts the debounce timer.
func (c *Controller[K]) Edit(value string) {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return
	}

	c.value = value
	c.cancelPendingLocked()

	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.scheduler.AfterFunc(c.quiescence, func() { c.fire(seq) })

	identity := c.identity
	c.lock.Unlock()

	c.invoke(HookPosEdit, value)
	c.invoke(HookPosSchedule, CommitRecord{
		Field:    c.name,
		Identity: identity,
		Value:    value,
		Reason:   ReasonQuiescence,
		Time:     c.scheduler.Now() + c.quiescence,
	})
}

// Exit flushes the field. The pending timer is cancelled first; then, if the
// local value differs from the source value, it is committed before Exit
// returns. It reports whether a commit happened.
func (c *Controller[K]) Exit() bool {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return false
	}

	c.cancelPendingLocked()

	if c.value == c.source {
		c.lock.Unlock()
		c.invoke(HookPosExit, nil)

		return false
	}

	identity, record := c.commitLocked(ReasonExit)
	c.lock.Unlock()

	c.deliver(identity, record)
	c.invoke(HookPosExit, record)

	return true
}

// Dispose tears the field down. The pending timer is cancelled and every
// later call is a no-op. A commit already handed to the committer is waited
// for, so the committer's backend can be closed once Dispose returns. It must
// not be called from the committer or from a commit hook.
func (c *Controller[K]) Dispose() {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		c.delivering.Wait()

		return
	}

	wasPending := c.cancelPendingLocked()
	c.disposed = true
	discarded := CommitRecord{
		Field:    c.name,
		Identity: c.identity,
		Value:    c.value,
		Time:     c.scheduler.Now(),
	}
	c.lock.Unlock()

	if wasPending {
		c.invoke(HookPosDiscard, discarded)
	}

	c.delivering.Wait()
	c.invoke(HookPosDispose, nil)
}

// fire runs when a debounce timer elapses. A timer that lost a race with a
// cancel carries an outdated sequence number and does nothing.
func (c *Controller[K]) fire(seq uint64) {
	c.lock.Lock()
	if c.disposed || c.timer == nil || seq != c.timerSeq {
		c.lock.Unlock()
		return
	}

	c.timer = nil
	identity, record := c.commitLocked(ReasonQuiescence)
	c.lock.Unlock()

	c.deliver(identity, record)
}

// commitLocked marks the local value as committed and registers the delivery
// that the caller must make after releasing the lock.
func (c *Controller[K]) commitLocked(reason CommitReason) (K, CommitRecord) {
	c.lastCommitted = c.value
	c.delivering.Add(1)

	return c.identity, CommitRecord{
		Field:    c.name,
		Identity: c.identity,
		Value:    c.value,
		Reason:   reason,
		Time:     c.scheduler.Now(),
	}
}

// deliver hands the value to the committer. The identity is passed typed, as
// the record only carries it for hooks.
func (c *Controller[K]) deliver(identity K, record CommitRecord) {
	defer c.delivering.Done()

	c.committer.Commit(identity, record.Value)

	c.logger.Debug("value committed",
		slog.String("identity", fmt.Sprint(record.Identity)),
		slog.String("reason", record.Reason.String()),
		slog.Int("length", len(record.Value)))

	c.invoke(HookPosCommit, record)
}

// cancelPendingLocked stops the live timer. Bumping the sequence number makes
// a timer that already fired but has not yet taken the lock a no-op.
func (c *Controller[K]) cancelPendingLocked() bool {
	if c.timer == nil {
		return false
	}

	c.timer.Stop()
	c.timer = nil
	c.timerSeq++

	return true
}

func (c *Controller[K]) invoke(pos *hooking.HookPos, item any) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
	})
}
