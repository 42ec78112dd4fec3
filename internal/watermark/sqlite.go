// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package watermark

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by SQLite, so watermarks survive process
// restarts. This is what keeps a restarted engine from re-firing history.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains configuration for the SQLite watermark store.
type SQLiteConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// Default: ~/.local/share/relay/watermarks.db
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	// For SQLite this should stay low to avoid lock contention.
	MaxOpenConns int
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed watermark store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.Path = filepath.Join(homeDir, ".local", "share", "relay", "watermarks.db")
	}

	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// WAL mode for better concurrency and durability.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS watermarks (
		provider TEXT NOT NULL,
		user_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		value TEXT NOT NULL,
		expires_at DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (provider, user_id, resource)
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get returns the stored marker for key, or ok=false if absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (string, bool, error) {
	query := `
	SELECT value, expires_at FROM watermarks
	WHERE provider = ? AND user_id = ? AND resource = ?
	`

	var value string
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, key.Provider, key.UserID, key.Resource).
		Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get watermark: %w", err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return "", false, nil
	}

	return value, true, nil
}

// Set stores the marker for key. A zero ttl stores it without expiry.
func (s *SQLiteStore) Set(ctx context.Context, key Key, value string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	query := `
	INSERT INTO watermarks (provider, user_id, resource, value, expires_at, updated_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(provider, user_id, resource) DO UPDATE SET
		value = excluded.value,
		expires_at = excluded.expires_at,
		updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, key.Provider, key.UserID, key.Resource, value, expiresAt); err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
