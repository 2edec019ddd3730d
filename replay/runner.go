package replay

import (
	"sync"
	"time"

	"github.com/sarchlab/fieldsync/field"
	"github.com/sarchlab/fieldsync/hooking"
	"github.com/sarchlab/fieldsync/timing"
)

// Commit is a value the field handed to its committer during a replay.
type Commit struct {
	At       time.Duration
	Identity string
	Value    string
}

// Result is the outcome of a replay.
type Result struct {
	Commits []Commit
	Final   field.Snapshot
}

type stepEvent struct {
	timing.EventBase
	index int
}

type runner struct {
	script    *Script
	engine    timing.Engine
	field     *field.Controller[string]
	committer field.Committer[string]
	start     time.Duration

	lock    sync.Mutex
	commits []Commit
}

// Run replays script on engine and returns every commit. Step times are
// offsets from the engine's time when Run is called. Steps are secondary
// events, so a step due at the same instant as a debounce deadline runs after
// the timer fires, and steps due together run in script order. Commits are also
// forwarded to committer when it is not nil, and hooks are attached to the
// field before the first step.
func Run(
	script *Script,
	engine timing.Engine,
	committer field.Committer[string],
	hooks ...hooking.Hook,
) (Result, error) {
	if err := script.Validate(); err != nil {
		return Result{}, err
	}

	r := &runner{
		script:    script,
		engine:    engine,
		committer: committer,
		start:     engine.Now(),
	}

	b := field.MakeBuilder[string]().
		WithName("Replay").
		WithScheduler(engine).
		WithCommitter(r)
	if script.Quiescence > 0 {
		b = b.WithQuiescence(script.Quiescence)
	}

	r.field = b.Build(script.Identity, script.Source)
	for _, h := range hooks {
		r.field.AcceptHook(h)
	}

	for i, step := range script.Steps {
		engine.Schedule(&stepEvent{
			EventBase: timing.MakeSecondaryEventBase(r.start+step.At, r),
			index:     i,
		})
	}

	if err := engine.Run(); err != nil {
		return Result{}, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	return Result{
		Commits: r.commits,
		Final:   r.field.Snapshot(),
	}, nil
}

func (r *runner) Handle(e timing.Event) error {
	evt := e.(*stepEvent)
	step := r.script.Steps[evt.index]

	switch step.Op {
	case OpEdit:
		r.field.Edit(step.Value)
	case OpExit:
		r.field.Exit()
	case OpSource:
		r.field.SetSource(step.Identity, step.Value)
	case OpAck:
		identity := step.Identity
		if identity == "" {
			identity = r.field.Identity()
		}

		r.field.Acknowledge(identity, step.Value)
	case OpDispose:
		r.field.Dispose()
	}

	return nil
}

func (r *runner) Commit(identity, value string) {
	r.lock.Lock()
	r.commits = append(r.commits, Commit{
		At:       r.engine.Now() - r.start,
		Identity: identity,
		Value:    value,
	})
	r.lock.Unlock()

	if r.committer != nil {
		r.committer.Commit(identity, value)
	}
}
