package field

import (
	"log/slog"
	"time"

	"github.com/sarchlab/fieldsync/timing"
)

// DefaultQuiescence is the delay between the last edit and the automatic
// commit.
const DefaultQuiescence = 1000 * time.Millisecond

// Builder can build debounced field controllers.
type Builder[K comparable] struct {
	name       string
	quiescence time.Duration
	scheduler  timing.Scheduler
	committer  Committer[K]
	normalize  func(string) string
	logger     *slog.Logger
}

// MakeBuilder creates a builder with the default quiescence window, a wall
// clock and a committer that drops every value.
func MakeBuilder[K comparable]() Builder[K] {
	return Builder[K]{
		name:       "Field",
		quiescence: DefaultQuiescence,
	}
}

// WithName sets the name used in hooks, logs and the monitor.
func (b Builder[K]) WithName(name string) Builder[K] {
	b.name = name
	return b
}

// WithQuiescence sets how long a field waits after the last edit before it
// commits.
func (b Builder[K]) WithQuiescence(d time.Duration) Builder[K] {
	b.quiescence = d
	return b
}

// WithScheduler sets the clock that drives the debounce timer.
func (b Builder[K]) WithScheduler(s timing.Scheduler) Builder[K] {
	b.scheduler = s
	return b
}

// WithCommitter sets the collaborator that receives committed values.
func (b Builder[K]) WithCommitter(c Committer[K]) Builder[K] {
	b.committer = c
	return b
}

// WithCommitFunc is a shortcut for WithCommitter(CommitFunc[K](f)).
func (b Builder[K]) WithCommitFunc(f func(identity K, value string)) Builder[K] {
	b.committer = CommitFunc[K](f)
	return b
}

// WithNormalizer sets a function applied to every source value the field is
// given.
func (b Builder[K]) WithNormalizer(f func(string) string) Builder[K] {
	b.normalize = f
	return b
}

// WithLogger sets the logger. The default is slog.Default().
func (b Builder[K]) WithLogger(l *slog.Logger) Builder[K] {
	b.logger = l
	return b
}

func (b Builder[K]) parametersMustBeValid() {
	if b.quiescence <= 0 {
		panic("quiescence window must be positive")
	}
}

// Build creates a controller bound to identity with source as both the
// authoritative and the local value.
func (b Builder[K]) Build(identity K, source string) *Controller[K] {
	b.parametersMustBeValid()

	c := &Controller[K]{
		name:       b.name,
		quiescence: b.quiescence,
		scheduler:  b.scheduler,
		committer:  b.committer,
		normalize:  b.normalize,
		logger:     b.logger,
	}

	if c.scheduler == nil {
		c.scheduler = timing.NewWallClock()
	}

	if c.committer == nil {
		c.committer = CommitFunc[K](func(K, string) {})
	}

	if c.normalize == nil {
		c.normalize = func(s string) string { return s }
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.logger = c.logger.With(slog.String("field", b.name))

	source = c.normalize(source)
	c.identity = identity
	c.source = source
	c.value = source

	return c
}
