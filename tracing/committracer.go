package tracing

import (
	"sync"

	"github.com/rs/xid"

	"github.com/sarchlab/fieldsync/datarecording"
	"github.com/sarchlab/fieldsync/hooking"
	"github.com/sarchlab/fieldsync/timing"
)

// ActivityTable is the table CommitTracer writes to.
const ActivityTable = "field_activity"

type activityEntry struct {
	ID       string
	Field    string
	Identity string
	Kind     string
	Reason   string
	Value    string
	Time     float64
}

// CommitTracer is a hook that stores the commits, discards and exits of the
// fields it is attached to in a DataRecorder.
type CommitTracer struct {
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	lock sync.Mutex
	err  error
}

// NewCommitTracer creates the activity table and returns the tracer.
func NewCommitTracer(
	timeTeller timing.TimeTeller,
	backend datarecording.DataRecorder,
) (*CommitTracer, error) {
	if err := backend.CreateTable(ActivityTable, activityEntry{}); err != nil {
		return nil, err
	}

	return &CommitTracer{
		timeTeller: timeTeller,
		backend:    backend,
	}, nil
}

// Func records the activity carried by ctx.
func (t *CommitTracer) Func(ctx hooking.HookCtx) {
	a, ok := activityOf(ctx)
	if !ok {
		return
	}

	if a.Time == 0 && a.Kind == KindExit {
		a.Time = t.timeTeller.Now()
	}

	err := t.backend.InsertData(ActivityTable, activityEntry{
		ID:       xid.New().String(),
		Field:    a.Field,
		Identity: a.Identity,
		Kind:     a.Kind,
		Reason:   a.Reason,
		Value:    a.Value,
		Time:     a.Time.Seconds(),
	})
	if err != nil {
		t.lock.Lock()
		if t.err == nil {
			t.err = err
		}
		t.lock.Unlock()
	}
}

// Err returns the first error hit while recording, if any.
func (t *CommitTracer) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.err
}
