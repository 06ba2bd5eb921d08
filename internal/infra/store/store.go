// Package store provides durable keyed storage for playback snapshots.
//
// Three backends exist: memory (default), file (one JSON document), and
// sqlite. All are safe for concurrent use; every operation is keyed by
// chat id, so no cross-chat transaction ever occurs.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/callbox/internal/domain/snapshot"
)

var (
	// ErrNotFound is returned by Get when no snapshot exists for the chat.
	ErrNotFound = errors.New("snapshot not found")

	// ErrUnavailable wraps backend I/O failures. Callers degrade to
	// in-memory operation; playback never stops because of it.
	ErrUnavailable = errors.New("snapshot store unavailable")
)

// Store is the durable keyed storage consumed by playback sessions and
// the resume pass.
type Store interface {
	// Get returns the snapshot for one chat, or ErrNotFound.
	Get(ctx context.Context, chatID int64) (snapshot.Snapshot, error)
	// Put writes or replaces the snapshot for its chat.
	Put(ctx context.Context, snap snapshot.Snapshot) error
	// Delete removes the snapshot for one chat. Missing keys are not errors.
	Delete(ctx context.Context, chatID int64) error
	// List returns all stored snapshots. Used once, at startup.
	List(ctx context.Context) ([]snapshot.Snapshot, error)
	// Close releases backend resources.
	Close() error
}

// Open builds the store selected by backend name. Settings are
// backend-specific and validated per backend.
func Open(backend string, settings map[string]any) (Store, error) {
	switch backend {
	case "memory", "":
		return NewMemory(), nil
	case "file":
		return NewFile(settings)
	case "sqlite":
		return NewSQLite(settings)
	default:
		return nil, errors.Newf("unknown store backend %q", backend)
	}
}

// decodeSettings fills a backend settings struct from the config map,
// applies defaults, and validates it.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
