// Package tracing turns field hooks into activity records.
package tracing

import (
	"fmt"
	"time"

	"github.com/sarchlab/fieldsync/field"
	"github.com/sarchlab/fieldsync/hooking"
)

// Activity kinds.
const (
	KindCommit  = "commit"
	KindDiscard = "discard"
	KindExit    = "exit"
)

// Activity is one traced event of a field.
type Activity struct {
	Kind     string
	Field    string
	Identity string
	Value    string
	Reason   string
	Time     time.Duration
}

type snapshotter interface {
	Snapshot() field.Snapshot
}

// activityOf converts a hook context into an activity. It reports false for
// positions that are not traced.
func activityOf(ctx hooking.HookCtx) (Activity, bool) {
	var kind string

	switch ctx.Pos {
	case field.HookPosCommit:
		kind = KindCommit
	case field.HookPosDiscard:
		kind = KindDiscard
	case field.HookPosExit:
		kind = KindExit
	default:
		return Activity{}, false
	}

	a := Activity{Kind: kind}

	if record, ok := ctx.Item.(field.CommitRecord); ok {
		a.Field = record.Field
		a.Identity = fmt.Sprint(record.Identity)
		a.Value = record.Value
		a.Time = record.Time

		if kind != KindDiscard {
			a.Reason = record.Reason.String()
		}

		return a, true
	}

	if s, ok := ctx.Domain.(snapshotter); ok {
		snapshot := s.Snapshot()
		a.Field = snapshot.Name
		a.Identity = snapshot.Identity
	}

	return a, true
}
