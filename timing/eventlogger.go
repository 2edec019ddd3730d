package timing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sarchlab/fieldsync/hooking"
)

// EventLogger is an hook that prints the event information
type EventLogger struct {
	logger *slog.Logger
	level  slog.Level
}

// NewEventLogger returns a new EventLogger which will write in to the logger
// at debug level.
func NewEventLogger(logger *slog.Logger) *EventLogger {
	h := new(EventLogger)

	h.logger = logger
	h.level = slog.LevelDebug

	return h
}

// Func writes the event information into the logger
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	h.logger.Log(context.Background(), h.level, "event",
		slog.Duration("time", evt.Time()),
		slog.String("type", fmt.Sprintf("%T", evt)),
		slog.String("handler", fmt.Sprintf("%T", evt.Handler())),
	)
}
