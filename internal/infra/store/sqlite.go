package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	_ "modernc.org/sqlite"

	"github.com/osa030/callbox/internal/domain/snapshot"
)

// SQLiteSettings configures the sqlite backend.
type SQLiteSettings struct {
	Path          string `mapstructure:"path" default:"callbox.db" validate:"required"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms" default:"5000" validate:"gte=0"`
	Synchronous   string `mapstructure:"synchronous" default:"NORMAL" validate:"oneof=OFF NORMAL FULL"`
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	chat_id    INTEGER PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLite persists each snapshot as a JSON payload in a single table,
// one row per chat.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database file and schema.
func NewSQLite(settings map[string]any) (*SQLite, error) {
	var cfg SQLiteSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database %s", cfg.Path)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA synchronous=%s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeoutMs),
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &SQLite{db: db}, nil
}

// Get returns the snapshot for one chat, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, chatID int64) (snapshot.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM snapshots WHERE chat_id = ?", chatID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return snapshot.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, errors.Wrapf(ErrUnavailable, "select chat %d: %v", chatID, err)
	}
	return decodePayload(payload)
}

// Put writes or replaces the snapshot for its chat.
func (s *SQLite) Put(ctx context.Context, snap snapshot.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "marshal chat %d: %v", snap.ChatID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (chat_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			payload=excluded.payload,
			updated_at=excluded.updated_at
	`, snap.ChatID, string(payload), snap.SavedAt.Unix())
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "upsert chat %d: %v", snap.ChatID, err)
	}
	return nil
}

// Delete removes the snapshot for one chat.
func (s *SQLite) Delete(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE chat_id = ?", chatID,
	); err != nil {
		return errors.Wrapf(ErrUnavailable, "delete chat %d: %v", chatID, err)
	}
	return nil
}

// List returns all stored snapshots ordered by chat id.
func (s *SQLite) List(ctx context.Context) ([]snapshot.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM snapshots ORDER BY chat_id",
	)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "select all: %v", err)
	}
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrapf(ErrUnavailable, "scan row: %v", err)
		}
		snap, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "iterate rows: %v", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func decodePayload(payload string) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return snapshot.Snapshot{}, errors.Wrapf(ErrUnavailable, "parse payload: %v", err)
	}
	return snap, nil
}
