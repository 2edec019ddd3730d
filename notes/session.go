package notes

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sarchlab/fieldsync/field"
)

// ErrNoProject is returned when a session is used before a project is opened.
var ErrNoProject = errors.New("no project open")

// Session edits the notes of one project at a time through a debounced
// field. Committed values are written to the store and acknowledged back to
// the field once the write lands.
type Session struct {
	store   *Store
	builder field.Builder[int64]
	logger  *slog.Logger
	onError func(id int64, err error)

	lock  sync.Mutex
	field *field.Controller[int64]
}

// NewSession creates a session over store. The builder decides quiescence,
// scheduler, name and normalizer; its committer is replaced by the session.
func NewSession(store *Store, builder field.Builder[int64]) *Session {
	s := &Session{
		store:  store,
		logger: slog.Default(),
	}
	s.builder = builder.WithCommitter(s)

	return s
}

// WithLogger sets the logger used to report failed writes.
func (s *Session) WithLogger(l *slog.Logger) *Session {
	s.logger = l
	return s
}

// WithErrorHandler sets a callback for failed writes.
func (s *Session) WithErrorHandler(f func(id int64, err error)) *Session {
	s.onError = f
	return s
}

// Open loads a project and binds the field to it. A pending commit for the
// previous project is dropped, so callers switching projects should Exit
// first.
func (s *Session) Open(id int64) (Project, error) {
	p, err := s.store.Project(id)
	if err != nil {
		return Project{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.field == nil {
		s.field = s.builder.WithLogger(s.logger).Build(p.ID, p.Notes)
		return p, nil
	}

	s.field.SetSource(p.ID, p.Notes)

	return p, nil
}

// Field returns the bound field, or nil before the first Open.
func (s *Session) Field() *field.Controller[int64] {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.field
}

// Edit forwards an edit to the field.
func (s *Session) Edit(value string) error {
	f := s.Field()
	if f == nil {
		return ErrNoProject
	}

	f.Edit(value)

	return nil
}

// Exit flushes the field and reports whether a write was issued.
func (s *Session) Exit() (bool, error) {
	f := s.Field()
	if f == nil {
		return false, ErrNoProject
	}

	return f.Exit(), nil
}

// Close flushes and disposes the field.
func (s *Session) Close() {
	f := s.Field()
	if f == nil {
		return
	}

	f.Exit()
	f.Dispose()
}

// Commit writes value to the store. It is called by the field; failures are
// logged and reported to the error handler, never retried.
func (s *Session) Commit(id int64, value string) {
	p, err := s.store.UpdateNotes(id, value)
	if err != nil {
		s.logger.Error("saving notes failed",
			slog.Int64("project", id),
			slog.Any("error", err))

		if s.onError != nil {
			s.onError(id, err)
		}

		return
	}

	s.logger.Debug("notes saved",
		slog.Int64("project", id),
		slog.Time("updated_at", p.UpdatedAt))

	if f := s.Field(); f != nil {
		f.Acknowledge(id, p.Notes)
	}
}
