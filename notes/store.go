// Package notes persists project notes in SQLite and binds them to debounced
// fields.
package notes

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
)

// ErrProjectNotFound is returned when a project id does not exist.
var ErrProjectNotFound = errors.New("project not found")

// Project is a record whose notes can be edited.
type Project struct {
	ID        int64
	Name      string
	Notes     string
	UpdatedAt time.Time
}

// Store keeps projects in a SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

const timeLayout = "2006-01-02T15:04:05.000Z"

// Open opens or creates the database at path. Use ":memory:" for a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening notes database %s: %w", path, err)
	}

	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating notes schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject inserts a project and returns it.
func (s *Store) CreateProject(name, notes string) (Project, error) {
	res, err := s.db.Exec(
		"INSERT INTO projects (name, notes) VALUES (?, ?)", name, notes)
	if err != nil {
		return Project{}, fmt.Errorf("creating project %q: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Project{}, fmt.Errorf("creating project %q: %w", name, err)
	}

	return s.Project(id)
}

// Project loads a project by id.
func (s *Store) Project(id int64) (Project, error) {
	var (
		p         Project
		updatedAt string
	)

	err := s.db.QueryRow(
		"SELECT id, name, notes, updated_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Notes, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project %d: %w", id, ErrProjectNotFound)
	}

	if err != nil {
		return Project{}, fmt.Errorf("loading project %d: %w", id, err)
	}

	p.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("project %d has a bad timestamp: %w", id, err)
	}

	return p, nil
}

// Projects lists every project ordered by id.
func (s *Store) Projects() ([]Project, error) {
	rows, err := s.db.Query("SELECT id FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("listing projects: %w", err)
		}

		ids = append(ids, id)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	projects := make([]Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.Project(id)
		if err != nil {
			return nil, err
		}

		projects = append(projects, p)
	}

	return projects, nil
}

// UpdateNotes replaces the notes of a project and bumps its timestamp.
func (s *Store) UpdateNotes(id int64, notes string) (Project, error) {
	res, err := s.db.Exec(
		`UPDATE projects
		SET notes = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`, notes, id)
	if err != nil {
		return Project{}, fmt.Errorf("updating notes of project %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Project{}, fmt.Errorf("updating notes of project %d: %w", id, err)
	}

	if n == 0 {
		return Project{}, fmt.Errorf("project %d: %w", id, ErrProjectNotFound)
	}

	return s.Project(id)
}
