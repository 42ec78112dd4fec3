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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/relay/pkg/errors"
)

// SQLite is a Repository backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// SQLiteConfig contains configuration for the SQLite repository.
type SQLiteConfig struct {
	// Path is the filesystem path to the database file.
	// Default: ~/.local/share/relay/relay.db
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	// For SQLite this should stay low to avoid lock contention.
	MaxOpenConns int
}

// NewSQLite opens (creating if needed) the SQLite-backed repository.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.Path = filepath.Join(homeDir, ".local", "share", "relay", "relay.db")
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

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		name TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reactions (
		name TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS bindings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		reaction TEXT NOT NULL,
		action_config TEXT NOT NULL DEFAULT '{}',
		reaction_config TEXT NOT NULL DEFAULT '{}',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_bindings_user ON bindings(user_id);
	CREATE INDEX IF NOT EXISTS idx_bindings_active ON bindings(active);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		binding_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		config TEXT NOT NULL DEFAULT '{}',
		result TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_executions_binding ON executions(binding_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateBinding persists a new binding. Timestamps are set here.
func (s *SQLite) CreateBinding(ctx context.Context, b *Binding) error {
	actionConfig, err := json.Marshal(orEmpty(b.ActionConfig))
	if err != nil {
		return fmt.Errorf("failed to encode action config: %w", err)
	}
	reactionConfig, err := json.Marshal(orEmpty(b.ReactionConfig))
	if err != nil {
		return fmt.Errorf("failed to encode reaction config: %w", err)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	query := `
	INSERT INTO bindings (id, user_id, action, reaction, action_config, reaction_config, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.Action, b.Reaction,
		string(actionConfig), string(reactionConfig),
		boolToInt(b.Active), now, now)
	if err != nil {
		return fmt.Errorf("failed to create binding: %w", err)
	}
	return nil
}

// FindBinding loads one binding by id.
func (s *SQLite) FindBinding(ctx context.Context, id string) (*Binding, error) {
	query := `
	SELECT id, user_id, action, reaction, action_config, reaction_config, active, created_at, updated_at
	FROM bindings WHERE id = ?
	`
	b, err := scanBinding(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "binding", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load binding: %w", err)
	}
	return b, nil
}

// FindActiveBindings loads every active binding, oldest first so restart
// recovery restarts lifecycles in creation order.
func (s *SQLite) FindActiveBindings(ctx context.Context) ([]*Binding, error) {
	query := `
	SELECT id, user_id, action, reaction, action_config, reaction_config, active, created_at, updated_at
	FROM bindings WHERE active = 1 ORDER BY created_at ASC
	`
	return s.queryBindings(ctx, query)
}

// FindBindingsByUser loads all of a user's bindings, newest first.
func (s *SQLite) FindBindingsByUser(ctx context.Context, userID string) ([]*Binding, error) {
	query := `
	SELECT id, user_id, action, reaction, action_config, reaction_config, active, created_at, updated_at
	FROM bindings WHERE user_id = ? ORDER BY created_at DESC
	`
	return s.queryBindings(ctx, query, userID)
}

func (s *SQLite) queryBindings(ctx context.Context, query string, args ...any) ([]*Binding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// SetBindingActive flips a binding's active flag.
func (s *SQLite) SetBindingActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE bindings SET active = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, boolToInt(active), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update binding: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "binding", ID: id}
	}
	return nil
}

// EnsureAction records an action in the catalogue on first use.
func (s *SQLite) EnsureAction(ctx context.Context, name, provider string) error {
	return s.ensureCatalogue(ctx, "actions", name, provider)
}

// EnsureReaction records a reaction in the catalogue on first use.
func (s *SQLite) EnsureReaction(ctx context.Context, name, provider string) error {
	return s.ensureCatalogue(ctx, "reactions", name, provider)
}

func (s *SQLite) ensureCatalogue(ctx context.Context, table, name, provider string) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, provider) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, table)
	if _, err := s.db.ExecContext(ctx, query, name, provider); err != nil {
		return fmt.Errorf("failed to record %s entry: %w", table, err)
	}
	return nil
}

// AppendExecution appends one execution record.
func (s *SQLite) AppendExecution(ctx context.Context, e *Execution) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode execution data: %w", err)
	}
	config, err := json.Marshal(orEmpty(e.Config))
	if err != nil {
		return fmt.Errorf("failed to encode execution config: %w", err)
	}

	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO executions (binding_id, user_id, data, config, result, error, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		e.BindingID, e.UserID, string(data), string(config), e.Result, e.Error, e.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to append execution: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ExecutionsForBinding loads a binding's execution history, newest first.
func (s *SQLite) ExecutionsForBinding(ctx context.Context, bindingID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, binding_id, user_id, data, config, result, error, executed_at
	FROM executions WHERE binding_id = ? ORDER BY id DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, bindingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var e Execution
		var data, config string
		if err := rows.Scan(&e.ID, &e.BindingID, &e.UserID, &data, &config, &e.Result, &e.Error, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("failed to decode execution data: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &e.Config); err != nil {
			return nil, fmt.Errorf("failed to decode execution config: %w", err)
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*Binding, error) {
	var b Binding
	var actionConfig, reactionConfig string
	var active int

	err := row.Scan(&b.ID, &b.UserID, &b.Action, &b.Reaction,
		&actionConfig, &reactionConfig, &active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actionConfig), &b.ActionConfig); err != nil {
		return nil, fmt.Errorf("failed to decode action config: %w", err)
	}
	if err := json.Unmarshal([]byte(reactionConfig), &b.ReactionConfig); err != nil {
		return nil, fmt.Errorf("failed to decode reaction config: %w", err)
	}

	b.Active = active != 0
	return &b, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
