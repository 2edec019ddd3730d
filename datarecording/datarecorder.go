// Package datarecording stores flat records in SQLite tables.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// ErrInvalidEntry is returned for entries that are not flat structs of scalar
// fields.
var ErrInvalidEntry = errors.New("entry is invalid")

// ErrNoSuchTable is returned when inserting into a table that was not
// created.
var ErrNoSuchTable = errors.New("table does not exist")

// ErrClosed is returned when using a recorder after Close.
var ErrClosed = errors.New("recorder is closed")

const defaultBatchSize = 100000

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of sampleEntry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry of the type the table was created with.
	InsertData(tableName string, entry any) error

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes all buffered entries into the database.
	Flush() error

	// Close flushes and closes the database.
	Close() error
}

// New creates a DataRecorder writing to path + ".sqlite3". An empty path
// picks a unique name. An existing file is never overwritten.
func New(path string) (DataRecorder, error) {
	if path == "" {
		path = "fieldsync_journal_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	w := newWriter(db)
	w.filename = filename
	atexit.Register(func() { _ = w.Flush() })

	return w, nil
}

// NewWithDB creates a DataRecorder over an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	w := newWriter(db)
	atexit.Register(func() { _ = w.Flush() })

	return w
}

func newWriter(db *sql.DB) *sqliteWriter {
	return &sqliteWriter{
		db:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*table),
	}
}

type table struct {
	structType reflect.Type
	columns    []string
	entries    []any
}

// sqliteWriter is the writer that writes data into a SQLite database.
type sqliteWriter struct {
	lock sync.Mutex

	db         *sql.DB
	filename   string
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func columnsOf(entry any) ([]string, error) {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct || t.NumField() == 0 {
		return nil, fmt.Errorf("%T: %w", entry, ErrInvalidEntry)
	}

	columns := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		if !f.IsExported() || !isAllowedKind(f.Type.Kind()) {
			return nil, fmt.Errorf("%T field %s: %w", entry, f.Name, ErrInvalidEntry)
		}

		columns = append(columns, f.Name)
	}

	return columns, nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) error {
	columns, err := columnsOf(sampleEntry)
	if err != nil {
		return err
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return fmt.Errorf("creating table %s: %w", tableName, ErrClosed)
	}

	if _, exists := w.tables[tableName]; exists {
		return fmt.Errorf("table %s already exists", tableName)
	}

	query := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		quote(tableName), strings.Join(quoteAll(columns), ", \n\t"))
	if _, err := w.db.Exec(query); err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		columns:    columns,
	}

	return nil
}

func (w *sqliteWriter) InsertData(tableName string, entry any) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return fmt.Errorf("inserting into %s: %w", tableName, ErrClosed)
	}

	t, exists := w.tables[tableName]
	if !exists {
		return fmt.Errorf("inserting into %s: %w", tableName, ErrNoSuchTable)
	}

	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("inserting %T into %s: %w", entry, tableName, ErrInvalidEntry)
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		return w.flushLocked()
	}

	return nil
}

func (w *sqliteWriter) ListTables() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	tables := make([]string, 0, len(w.tables))
	for name := range w.tables {
		tables = append(tables, name)
	}

	sort.Strings(tables)

	return tables
}

func (w *sqliteWriter) Flush() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.flushLocked()
}

func (w *sqliteWriter) flushLocked() error {
	if w.entryCount == 0 || w.closed {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("flushing records: %w", err)
	}

	for name, t := range w.tables {
		if err := insertAll(tx, name, t); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flushing records: %w", err)
	}

	for _, t := range w.tables {
		t.entries = nil
	}

	w.entryCount = 0

	return nil
}

func insertAll(tx *sql.Tx, name string, t *table) error {
	if len(t.entries) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	stmt, err := tx.Prepare(
		"INSERT INTO " + quote(name) + " VALUES (" + placeholders + ")")
	if err != nil {
		return fmt.Errorf("preparing insert into %s: %w", name, err)
	}
	defer stmt.Close()

	values := make([]any, len(t.columns))
	for _, entry := range t.entries {
		v := reflect.ValueOf(entry)
		for i := range values {
			values[i] = v.Field(i).Interface()
		}

		if _, err := stmt.Exec(values...); err != nil {
			return fmt.Errorf("inserting into %s: %w", name, err)
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return nil
	}

	if err := w.flushLocked(); err != nil {
		return err
	}

	w.closed = true

	return w.db.Close()
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}

	return quoted
}
