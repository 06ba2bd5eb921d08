package autoplay

import (
	"context"
	"math/rand"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/infra/lastfm"
)

// LastFMClient is the slice of the Last.fm API the provider uses.
type LastFMClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

// LastFMSimilarConfig represents the lastfm_similar provider settings.
type LastFMSimilarConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	FetchLimit int    `yaml:"fetch_limit" mapstructure:"fetch_limit" default:"30" validate:"gte=1,lte=100"`
}

// LastFMSimilarProvider proposes tracks similar to the last played one
// using Last.fm. Without a usable seed it falls back to the global
// charts.
type LastFMSimilarProvider struct {
	config *LastFMSimilarConfig
	client LastFMClient
	rng    *rand.Rand
}

// NewLastFMSimilarProvider creates a lastfm_similar provider from
// settings.
func NewLastFMSimilarProvider(settings map[string]any) (*LastFMSimilarProvider, error) {
	var config LastFMSimilarConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	zlog.Debug().Msgf("autoplay: lastfm_similar provider config: fetch_limit=%d", config.FetchLimit)

	return &LastFMSimilarProvider{
		config: &config,
		client: client,
		rng:    newSeededRand(),
	}, nil
}

// Name returns the provider name.
func (p *LastFMSimilarProvider) Name() string {
	return "lastfm_similar"
}

// Propose asks Last.fm for tracks similar to the seed, drops recently
// played ones, and returns a random sample as search queries.
func (p *LastFMSimilarProvider) Propose(ctx context.Context, req Request) ([]string, error) {
	if req.Count <= 0 {
		return nil, nil
	}

	if req.Seed.IsZero() || req.Seed.Artist == "" || req.Seed.Title == "" {
		zlog.Debug().Msgf("autoplay: no usable seed, using charts: chat=%d", req.ChatID)
		return p.proposeFromCharts(ctx, req.Count)
	}

	similar, err := p.client.GetSimilarTracks(ctx, req.Seed.Title, req.Seed.Artist, p.config.FetchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get similar tracks")
	}
	if len(similar) == 0 {
		zlog.Debug().Msgf("autoplay: no similar tracks for seed, using charts: chat=%d seed=%s",
			req.ChatID, req.Seed)
		return p.proposeFromCharts(ctx, req.Count)
	}

	avoid := make(map[string]bool, len(req.Recent)+1)
	avoid[trackKey(req.Seed.Artist, req.Seed.Title)] = true
	for _, t := range req.Recent {
		avoid[trackKey(t.Artist, t.Title)] = true
	}

	candidates := make([]string, 0, len(similar))
	for _, s := range similar {
		if avoid[trackKey(s.Artist, s.Name)] {
			continue
		}
		candidates = append(candidates, searchQuery(s.Artist, s.Name))
	}
	if len(candidates) == 0 {
		return p.proposeFromCharts(ctx, req.Count)
	}

	p.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > req.Count {
		candidates = candidates[:req.Count]
	}
	return candidates, nil
}

// proposeFromCharts samples the global top tracks.
func (p *LastFMSimilarProvider) proposeFromCharts(ctx context.Context, count int) ([]string, error) {
	top, err := p.client.GetChartTopTracks(ctx, p.config.FetchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart top tracks")
	}

	queries := make([]string, 0, len(top))
	for _, t := range top {
		queries = append(queries, searchQuery(t.Artist, t.Name))
	}
	p.rng.Shuffle(len(queries), func(i, j int) {
		queries[i], queries[j] = queries[j], queries[i]
	})
	if len(queries) > count {
		queries = queries[:count]
	}
	return queries, nil
}

// trackKey normalizes an artist/title pair for repeat detection.
func trackKey(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "|" + strings.ToLower(strings.TrimSpace(title))
}

// searchQuery builds the free-text query dispatched for a proposal.
func searchQuery(artist, title string) string {
	if artist == "" {
		return title
	}
	return artist + " " + title
}
