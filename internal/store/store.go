// Package store persists row sets into SQL tables.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/payload"
)

// ErrPersistence wraps every failed write
var ErrPersistence = errors.New("persistence error")

// Mode selects how rows are written
type Mode string

const (
	// ModeInsert appends rows to the table
	ModeInsert Mode = "insert"
	// ModeReplace empties the table before inserting
	ModeReplace Mode = "replace"
)

// Writer is the persistence boundary used by the interrupt processor
type Writer interface {
	Write(ctx context.Context, mode Mode, table string, rows *payload.RowSet) error
}

// identifier restricts table names, which come from configuration. Column
// names come from payloads and are quoted instead.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore writes row sets through database/sql
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *logger.Logger
}

// Open connects to the database and verifies it is reachable. sqlite tables
// are created on first write from the row set's columns; postgres tables are
// provisioned by the operator.
func Open(ctx context.Context, driver, dsn string, log *logger.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}

	log.Info("connected to history store", "driver", driver)
	return New(db, driver, log), nil
}

// New wraps an existing connection pool
func New(db *sql.DB, driver string, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, driver: driver, logger: log}
}

// Write stores rows into table in a single transaction
func (s *SQLStore) Write(ctx context.Context, mode Mode, table string, rows *payload.RowSet) error {
	if mode != ModeInsert && mode != ModeReplace {
		return fmt.Errorf("%w: unknown write mode %q", ErrPersistence, mode)
	}
	if !identifier.MatchString(table) {
		return fmt.Errorf("%w: invalid table name %q", ErrPersistence, table)
	}
	if rows.Len() == 0 {
		return fmt.Errorf("%w: no rows to write", ErrPersistence)
	}
	if len(rows.Columns) == 0 {
		return fmt.Errorf("%w: row set has no columns", ErrPersistence)
	}
	for _, c := range rows.Columns {
		if c == "" || strings.ContainsRune(c, 0) {
			return fmt.Errorf("%w: invalid column name %q", ErrPersistence, c)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrPersistence, err)
	}

	if s.driver == "sqlite3" {
		// sqlite tables are created on first write, typed by value affinity
		if _, err := tx.ExecContext(ctx, createQuery(table, rows.Columns)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: create %s: %v", ErrPersistence, table, err)
		}
	}

	if mode == ModeReplace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: clear %s: %v", ErrPersistence, table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.insertQuery(table, rows.Columns))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: prepare insert into %s: %v", ErrPersistence, table, err)
	}
	defer stmt.Close()

	for i := range rows.Rows {
		args, err := sqlValues(rows.Values(i))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: row %d: %v", ErrPersistence, i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: insert row %d into %s: %v", ErrPersistence, i, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}

	s.logger.Debug("wrote rows",
		"table", table,
		"mode", string(mode),
		"rows", rows.Len())

	return nil
}

// Close releases the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) insertQuery(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if s.driver == "postgres" {
			fmt.Fprintf(&b, "$%d", i+1)
		} else {
			b.WriteString("?")
		}
	}
	b.WriteString(")")
	return b.String()
}

func createQuery(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	return "CREATE TABLE IF NOT EXISTS " + quote(table) + " (" + strings.Join(quoted, ", ") + ")"
}

// quote renders ident as a delimited identifier
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// sqlValues converts cells into driver values; nested structures are stored
// as JSON text
func sqlValues(cells []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(cells))
	for i, v := range cells {
		switch t := v.(type) {
		case nil, string, bool, int64, float64, time.Time, []byte:
			out[i] = t
		case int:
			out[i] = int64(t)
		default:
			data, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			out[i] = string(data)
		}
	}
	return out, nil
}
