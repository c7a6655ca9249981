package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"

	_ "modernc.org/sqlite"
)

const (
	SettingsKey  = "pivot-settings"
	WatchlistKey = "pivot-watchlist"
)

// SQLiteStore keeps settings and the watchlist as JSON documents in a
// key/value table.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ drepo.SettingsStore  = (*SQLiteStore)(nil)
	_ drepo.WatchlistStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(b), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (models.Settings, bool, error) {
	var st models.Settings
	ok, err := s.get(ctx, SettingsKey, &st)
	return st, ok, err
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, st models.Settings) error {
	return s.put(ctx, SettingsKey, st)
}

func (s *SQLiteStore) LoadWatchlist(ctx context.Context) (models.PersistedWatchlist, bool, error) {
	var w models.PersistedWatchlist
	ok, err := s.get(ctx, WatchlistKey, &w)
	return w, ok, err
}

func (s *SQLiteStore) SaveWatchlist(ctx context.Context, w models.PersistedWatchlist) error {
	return s.put(ctx, WatchlistKey, w)
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
