package contextstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contexts (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contexts_updated_at ON contexts(updated_at);
`

// SQLiteStore keeps one JSON row per chat in a local SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string

	// writeMu serializes read-modify-write property updates within this process.
	writeMu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string, busyTimeout time.Duration) (*SQLiteStore, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		// Each connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(8)
		conn.SetMaxIdleConns(4)
	}
	conn.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) load(ctx context.Context, id string) (Record, bool, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM contexts WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load context %q: %w", id, err)
	}
	rec, err := decodeRecord([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("context %q: %w", id, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) save(ctx context.Context, id string, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO contexts (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save context %q: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	rec, ok, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Record{}, nil
	}
	return rec, nil
}

func (s *SQLiteStore) Set(ctx context.Context, id string, rec Record) (string, error) {
	if id == "" || len(rec) == 0 {
		return "", nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.save(ctx, id, withID(id, rec)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM contexts WHERE id = ?`, id)
	if err != nil {
		return "", fmt.Errorf("failed to remove context %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to remove context %q: %w", id, err)
	}
	if n == 0 {
		return "", nil
	}
	return id, nil
}

func (s *SQLiteStore) GetProp(ctx context.Context, id, key string) (any, error) {
	rec, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec[key], nil
}

func (s *SQLiteStore) SetProp(ctx context.Context, id, key string, value any) (Record, error) {
	if id == "" {
		return nil, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, ok, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		rec = Record{}
	}
	rec = withID(id, rec)
	if !writableKey(key) {
		return rec, nil
	}
	rec[key] = value
	if err := s.save(ctx, id, rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *SQLiteStore) RemoveProp(ctx context.Context, id, key string) (Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, ok, err := s.load(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	rec = withID(id, rec)
	if !writableKey(key) {
		return rec, nil
	}
	delete(rec, key)
	if err := s.save(ctx, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByProp narrows candidates with json_extract when the key can be
// expressed as a JSON path, then compares values in Go.
func (s *SQLiteStore) FindByProp(ctx context.Context, key string, value any) ([]Record, error) {
	query := `SELECT data FROM contexts ORDER BY id`
	var args []any
	if path, ok := jsonPath(key); ok {
		query = `SELECT data FROM contexts WHERE json_type(data, ?) IS NOT NULL ORDER BY id`
		args = append(args, path)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		if matchProp(rec, key, value) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contexts: %w", err)
	}
	return out, nil
}

// jsonPath quotes key as a single JSON path member. Keys containing quotes
// or backslashes fall back to a full scan.
func jsonPath(key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, `"\`) {
		return "", false
	}
	return `$."` + key + `"`, true
}
