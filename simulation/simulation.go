// Package simulation wires fields to a clock, an activity journal and a
// monitor.
package simulation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sarchlab/fieldsync/datarecording"
	"github.com/sarchlab/fieldsync/field"
	"github.com/sarchlab/fieldsync/hooking"
	"github.com/sarchlab/fieldsync/monitoring"
	"github.com/sarchlab/fieldsync/timing"
	"github.com/sarchlab/fieldsync/tracing"
)

// A TrackedField can be traced and monitored by a simulation.
type TrackedField interface {
	hooking.Hookable
	monitoring.Snapshotter
}

type disposer interface {
	Exit() bool
	Dispose()
}

// A Simulation provides the services fields need: a clock, an activity
// journal and a monitor.
type Simulation struct {
	id         string
	quiescence time.Duration
	logger     *slog.Logger

	scheduler timing.Scheduler
	engine    *timing.SerialEngine

	dataRecorder datarecording.DataRecorder
	tracer       *tracing.CommitTracer
	logHook      *tracing.LogHook
	monitor      *monitoring.Monitor

	lock   sync.Mutex
	fields map[string]TrackedField
}

// ID returns the unique id of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Scheduler returns the clock the fields run on.
func (s *Simulation) Scheduler() timing.Scheduler {
	return s.scheduler
}

// Engine returns the serial engine, or nil when running on the wall clock.
func (s *Simulation) Engine() *timing.SerialEngine {
	return s.engine
}

// DataRecorder returns the recorder of the activity journal.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Tracer returns the tracer that journals field activity.
func (s *Simulation) Tracer() *tracing.CommitTracer {
	return s.tracer
}

// Monitor returns the monitor, or nil when monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Hooks returns the hooks attached to every tracked field.
func (s *Simulation) Hooks() []hooking.Hook {
	return []hooking.Hook{s.tracer, s.logHook}
}

// FieldBuilder returns a field builder configured with the simulation's
// clock, quiescence window and logger.
func FieldBuilder[K comparable](s *Simulation, name string) field.Builder[K] {
	return field.MakeBuilder[K]().
		WithName(name).
		WithScheduler(s.scheduler).
		WithQuiescence(s.quiescence).
		WithLogger(s.logger)
}

// NewField builds a tracked field of string identity.
func (s *Simulation) NewField(
	name, identity, source string,
	committer field.Committer[string],
) *field.Controller[string] {
	f := FieldBuilder[string](s, name).
		WithCommitter(committer).
		Build(identity, source)

	s.Track(f)

	return f
}

// Track attaches the journal and the log to a field and registers it with
// the monitor. Names must be unique.
func (s *Simulation) Track(f TrackedField) {
	name := f.Snapshot().Name

	s.lock.Lock()
	if _, found := s.fields[name]; found {
		s.lock.Unlock()
		panic("field " + name + " already registered")
	}

	s.fields[name] = f
	s.lock.Unlock()

	for _, h := range s.Hooks() {
		f.AcceptHook(h)
	}

	if s.monitor != nil {
		s.monitor.RegisterField(f)
	}
}

// Field returns the tracked field with the given name, or nil.
func (s *Simulation) Field(name string) TrackedField {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.fields[name]
}

// FieldNames returns the names of the tracked fields, sorted.
func (s *Simulation) FieldNames() []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Terminate flushes and disposes every field that supports it, then stops the
// monitor and closes the journal. Commits still being delivered finish before
// the journal closes.
func (s *Simulation) Terminate() error {
	for _, name := range s.FieldNames() {
		if d, ok := s.Field(name).(disposer); ok {
			d.Exit()
			d.Dispose()
		}
	}

	var errs []error

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		errs = append(errs, s.monitor.StopServer(ctx))
	}

	errs = append(errs, s.tracer.Err(), s.dataRecorder.Close())

	return errors.Join(errs...)
}
