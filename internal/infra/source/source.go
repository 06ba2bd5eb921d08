// Package source resolves track queries against a track catalog.
package source

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/config"
)

// Resolver resolves a query (track reference or free text) to a
// playable track.
type Resolver interface {
	// Name returns the resolver name for logs and track attribution.
	Name() string
	// Resolve resolves a query to a track. The query may be a source
	// specific reference (ID, URI, URL) or free-text search terms.
	Resolve(ctx context.Context, query string) (track.Track, error)
}

// New creates the resolver selected by the configuration.
func New(ctx context.Context, cfg config.SourceConfig) (Resolver, error) {
	switch cfg.Provider {
	case "spotify":
		return NewSpotify(ctx, cfg.Spotify)
	case "static":
		return NewStatic(cfg.Static)
	default:
		return nil, errors.Newf("unknown source provider: %s", cfg.Provider)
	}
}
