package localstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the durable per-device key/value state backing identity and
// entitlement data. It survives process restarts for the lifetime of the
// device profile. There is a single logical writer; concurrent access from
// two processes sharing the same database is not coordinated.
type Store struct {
	db *sql.DB
}

const schema = `create table if not exists state (
	key   text primary key,
	value text not null
);`

// Open initializes (and if necessary creates) the state database at path.
// The special path ":memory:" yields a throwaway store for tests.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("localstate: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("localstate: ensure state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstate: open database: %w", err)
	}
	// One connection: there is a single logical writer, and pooling would
	// hand every new connection to ":memory:" its own empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstate: ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key. The second return reports whether
// the key was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `select value from state where key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("localstate: read %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("localstate: key is required")
	}
	_, err := s.db.ExecContext(ctx,
		`insert into state(key, value) values (?, ?)
		 on conflict(key) do update set value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("localstate: write %q: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `delete from state where key = ?`, key); err != nil {
		return fmt.Errorf("localstate: delete %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
