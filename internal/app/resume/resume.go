// Package resume restores playback sessions from persisted snapshots
// when the process starts.
package resume

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/infra/store"
)

// Coordinator runs the one-shot crash-resume pass. It must finish
// before the API starts accepting commands, so restored sessions never
// race user traffic.
type Coordinator struct {
	store    store.Store
	registry *registry.Registry
	maxAge   time.Duration
}

// New creates a coordinator. maxAge bounds how old a snapshot may be
// and still be resumed.
func New(st store.Store, reg *registry.Registry, maxAge time.Duration) *Coordinator {
	return &Coordinator{
		store:    st,
		registry: reg,
		maxAge:   maxAge,
	}
}

// Run executes the resume pass. Individual snapshot failures are
// logged and cleaned up without aborting the pass; only context
// cancellation stops it. A broken store degrades to an empty pass.
func (c *Coordinator) Run(ctx context.Context) error {
	snaps, err := c.store.List(ctx)
	if err != nil {
		zlog.Warn().Msgf("resume: listing snapshots failed, starting empty: err=%v", err)
		return nil
	}
	if len(snaps) == 0 {
		zlog.Info().Msgf("resume: no snapshots to restore")
		return nil
	}

	now := time.Now()
	var resumed, skipped, failed int

	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if age := snap.Age(now); age > c.maxAge {
			zlog.Info().Msgf("resume: snapshot too old, dropping: chat=%d age=%v", snap.ChatID, age)
			c.deleteSnapshot(ctx, snap.ChatID)
			skipped++
			continue
		}

		if err := c.registry.ResumeFromSnapshot(ctx, snap.ChatID, snap); err != nil {
			zlog.Warn().Msgf("resume: restore failed, dropping snapshot: chat=%d err=%v", snap.ChatID, err)
			c.deleteSnapshot(ctx, snap.ChatID)
			failed++
			continue
		}

		zlog.Info().Msgf("resume: session restored: chat=%d track=%s", snap.ChatID, snap.Track.ID)
		resumed++
	}

	zlog.Info().Msgf("resume: pass complete: resumed=%d skipped=%d failed=%d", resumed, skipped, failed)
	return nil
}

func (c *Coordinator) deleteSnapshot(ctx context.Context, chatID int64) {
	if err := c.store.Delete(ctx, chatID); err != nil {
		zlog.Warn().Msgf("resume: snapshot delete failed: chat=%d err=%v", chatID, err)
	}
}
