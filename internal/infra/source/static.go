package source

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/config"
)

// Static resolves queries against a config-declared catalog. It serves
// dev and test deployments that have no source credentials.
type Static struct {
	catalog []track.Track
}

// NewStatic creates a static resolver over the configured catalog.
func NewStatic(entries []config.StaticTrackConfig) (*Static, error) {
	if len(entries) == 0 {
		return nil, errors.New("static catalog is empty")
	}

	catalog := make([]track.Track, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			return nil, errors.Newf("duplicate static track id: %s", e.ID)
		}
		seen[e.ID] = true
		catalog = append(catalog, track.Track{
			ID:       e.ID,
			Title:    e.Title,
			Artist:   e.Artist,
			Duration: time.Duration(e.DurationSec) * time.Second,
			URL:      e.URL,
			Source:   "static",
		})
	}
	return &Static{catalog: catalog}, nil
}

// Name returns "static".
func (s *Static) Name() string { return "static" }

// Resolve matches the query by ID, URL, or case-insensitive substring
// of "artist title". First match wins.
func (s *Static) Resolve(_ context.Context, query string) (track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.Track{}, errors.New("query is required")
	}

	for _, t := range s.catalog {
		if t.ID == query || t.URL == query {
			return t, nil
		}
	}

	needle := strings.ToLower(query)
	for _, t := range s.catalog {
		haystack := strings.ToLower(t.Artist + " " + t.Title)
		if strings.Contains(haystack, needle) {
			return t, nil
		}
	}

	return track.Track{}, errors.Newf("no track found for %q", query)
}
