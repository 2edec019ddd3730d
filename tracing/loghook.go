package tracing

import (
	"context"
	"log/slog"

	"github.com/sarchlab/fieldsync/hooking"
)

// LogHook writes field activity to a logger. Commits and discards are logged
// at Info, exits at Debug.
type LogHook struct {
	logger *slog.Logger
}

// NewLogHook creates a LogHook. A nil logger means slog.Default().
func NewLogHook(logger *slog.Logger) *LogHook {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogHook{logger: logger}
}

// Func logs the activity carried by ctx.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	a, ok := activityOf(ctx)
	if !ok {
		return
	}

	level := slog.LevelInfo
	if a.Kind == KindExit {
		level = slog.LevelDebug
	}

	attrs := []slog.Attr{
		slog.String("field", a.Field),
		slog.String("identity", a.Identity),
	}

	if a.Reason != "" {
		attrs = append(attrs, slog.String("reason", a.Reason))
	}

	if a.Kind != KindExit {
		attrs = append(attrs, slog.Int("length", len(a.Value)))
	}

	h.logger.LogAttrs(context.Background(), level, "field "+a.Kind, attrs...)
}
