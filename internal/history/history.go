// Package history keeps a bounded record of the commands the dispatcher
// launched, backed by SQLite.
//
// The default database is ":memory:", so the record lives only as long as
// the process. A file path may be configured for operators who want the
// record to survive a restart; the table is trimmed to the configured limit
// after every insert either way.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// Launch is one command handed to the launcher.
type Launch struct {
	ID    string    `json:"id"`
	Time  time.Time `json:"time"`
	Path  string    `json:"path"`
	Mask  string    `json:"mask"`
	PID   int       `json:"pid"`
	Argv  []string  `json:"argv"`
	Error string    `json:"error,omitempty"`
}

// Store is a SQLite-backed launch record. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	limit int
	count atomic.Int64
}

// Open opens (or creates) the database at path and applies the schema. A
// limit of zero or less keeps every row.
func Open(path string, limit int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}

	// One connection: an in-memory database is private to its connection,
	// and SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	s := &Store{db: db, limit: limit}

	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM launches`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: count rows: %w", err)
	}
	s.count.Store(n)
	return s, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS launches (
    seq       INTEGER PRIMARY KEY AUTOINCREMENT,
    id        TEXT    NOT NULL UNIQUE,
    ts        TEXT    NOT NULL,
    path      TEXT    NOT NULL,
    mask      TEXT    NOT NULL,
    pid       INTEGER NOT NULL,
    argv      TEXT    NOT NULL DEFAULT '[]',
    error     TEXT    NOT NULL DEFAULT ''
);
`

// Record stores l. A missing ID is filled with a random UUID and a zero Time
// with the current time; the stored copy is returned.
func (s *Store) Record(ctx context.Context, l Launch) (Launch, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Time.IsZero() {
		l.Time = time.Now().UTC()
	}
	argv, err := json.Marshal(l.Argv)
	if err != nil {
		return l, fmt.Errorf("history: marshal argv: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO launches (id, ts, path, mask, pid, argv, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.Time.UTC().Format(time.RFC3339Nano),
		l.Path,
		l.Mask,
		l.PID,
		string(argv),
		l.Error,
	)
	if err != nil {
		return l, fmt.Errorf("history: insert: %w", err)
	}
	s.count.Add(1)

	if s.limit > 0 && s.count.Load() > int64(s.limit) {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM launches
			 WHERE seq <= (SELECT MAX(seq) FROM launches) - ?`, s.limit)
		if err != nil {
			return l, fmt.Errorf("history: trim: %w", err)
		}
		n, _ := res.RowsAffected()
		s.count.Add(-n)
	}
	return l, nil
}

// Recent returns up to n launches, newest first. If n <= 0, Recent returns
// nil without querying the database.
func (s *Store) Recent(ctx context.Context, n int) ([]Launch, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, path, mask, pid, argv, error
		 FROM   launches
		 ORDER  BY seq DESC
		 LIMIT  ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Launch
	for rows.Next() {
		var (
			l       Launch
			tsStr   string
			argvStr string
		)
		if err := rows.Scan(&l.ID, &tsStr, &l.Path, &l.Mask, &l.PID, &argvStr, &l.Error); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		l.Time, _ = time.Parse(time.RFC3339Nano, tsStr)
		if err := json.Unmarshal([]byte(argvStr), &l.Argv); err != nil {
			l.Argv = nil
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// Count returns the number of stored launches without touching the database.
func (s *Store) Count() int {
	return int(s.count.Load())
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
