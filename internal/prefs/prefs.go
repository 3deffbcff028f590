// Package prefs stores user preferences in a local SQLite database.
// Preferences are the only thing persisted between sessions.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/pine/internal/session"
)

// Known preference keys.
const (
	KeyDeleteLimit  = "delete_limit"
	KeyDeleteDepth  = "delete_depth"
	KeyDeleteDryRun = "delete_dry_run"
	KeyMode         = "mode"
)

// ErrUnknownKey is returned for keys that are not preferences.
var ErrUnknownKey = errors.New("unknown preference")

var validators = map[string]func(string) error{
	KeyDeleteLimit:  positiveInt,
	KeyDeleteDepth:  positiveInt,
	KeyDeleteDryRun: func(v string) error { _, err := strconv.ParseBool(v); return err },
	KeyMode:         func(v string) error { _, err := session.ParseMode(v); return err },
}

func positiveInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

// Keys returns the known preference keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(validators))
	for k := range validators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pref is a stored preference.
type Pref struct {
	Key       string    `json:"key" yaml:"key"`
	Value     string    `json:"value" yaml:"value"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is a SQLite-backed preference store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at path and migrates it.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping preferences: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Validate checks key and value without storing them.
func Validate(key, value string) error {
	check, ok := validators[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := check(value); err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

// Set stores a validated preference.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key and whether it is set.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Unset removes key and reports whether it was set.
func (s *Store) Unset(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("failed to unset %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every stored preference ordered by key.
func (s *Store) List(ctx context.Context) ([]Pref, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Pref
	for rows.Next() {
		var p Pref
		var updated string
		if err := rows.Scan(&p.Key, &p.Value, &updated); err != nil {
			return nil, err
		}
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Int returns key as an int, or def when unset.
func (s *Store) Int(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("preference %s: %w", key, err)
	}
	return n, nil
}

// Bool returns key as a bool, or def when unset.
func (s *Store) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("preference %s: %w", key, err)
	}
	return b, nil
}
