package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "modernc.org/sqlite"

	"github.com/puntoylana/offlinecache/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS caches (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS entries (
	cache       TEXT    NOT NULL,
	key         TEXT    NOT NULL,
	url         TEXT    NOT NULL,
	status      INTEGER NOT NULL,
	status_text TEXT    NOT NULL,
	header      TEXT    NOT NULL,
	body        BLOB,
	stored_at   INTEGER NOT NULL,
	PRIMARY KEY (cache, key)
);
`

// SQLiteStorage keeps caches in a SQLite database so they survive restarts
type SQLiteStorage struct {
	db *sql.DB
}

// Ensure SQLiteStorage implements Storage interface
var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: keeps ":memory:" databases coherent and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}

	return &SQLiteStorage{db: db}, nil
}

// Open returns the named cache, creating it when missing
func (s *SQLiteStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO caches (name) VALUES (?)`, name); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &sqliteCache{db: s.db, name: name}, nil
}

// Has reports whether the named cache exists
func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM caches WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup cache %s: %w", name, err)
	}
	return n > 0, nil
}

// Delete removes the named cache and its entries
func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache = ?`, name); err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	return n > 0, nil
}

// Keys lists cache names in creation order
func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list caches: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Match searches every cache in creation order
func (s *SQLiteStorage) Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error) {
	if !cacheable(key) {
		return nil, false, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT e.url, e.status, e.status_text, e.header, e.body, e.stored_at
		FROM entries e JOIN caches c ON c.name = e.cache
		WHERE e.key = ?
		ORDER BY c.id
		LIMIT 1`, string(key))
	return scanEntry(row, key)
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type sqliteCache struct {
	db   *sql.DB
	name string
}

func (c *sqliteCache) Name() string {
	return c.name
}

func (c *sqliteCache) Put(ctx context.Context, key core.RequestKey, resp *core.CachedResponse) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}

	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO entries (cache, key, url, status, status_text, header, body, stored_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM caches WHERE name = ?)
		ON CONFLICT (cache, key) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			status_text = excluded.status_text,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		c.name, string(key), resp.URL, resp.Status, resp.StatusText, string(header), resp.Body, resp.StoredAt.UnixNano(),
		c.name)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if n == 0 {
		return ErrCacheDeleted
	}
	return nil
}

func (c *sqliteCache) Match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool, error) {
	if !cacheable(key) {
		return nil, false, nil
	}
	row := c.db.QueryRowContext(ctx, `
		SELECT url, status, status_text, header, body, stored_at
		FROM entries WHERE cache = ? AND key = ?`, c.name, string(key))
	return scanEntry(row, key)
}

func (c *sqliteCache) Delete(ctx context.Context, key core.RequestKey) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE cache = ? AND key = ?`, c.name, string(key))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *sqliteCache) Keys(ctx context.Context) ([]core.RequestKey, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key FROM entries WHERE cache = ? ORDER BY key`, c.name)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", c.name, err)
	}
	defer rows.Close()

	var keys []core.RequestKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list keys of %s: %w", c.name, err)
		}
		keys = append(keys, core.RequestKey(k))
	}
	return keys, rows.Err()
}

func scanEntry(row *sql.Row, key core.RequestKey) (*core.CachedResponse, bool, error) {
	var (
		resp     core.CachedResponse
		header   string
		storedAt int64
	)
	err := row.Scan(&resp.URL, &resp.Status, &resp.StatusText, &header, &resp.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match %s: %w", key, err)
	}

	resp.Header = make(http.Header)
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, false, fmt.Errorf("decode header %s: %w", key, err)
	}
	resp.StoredAt = time.Unix(0, storedAt)
	return &resp, true, nil
}
