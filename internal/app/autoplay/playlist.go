package autoplay

import (
	"context"
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/domain/playlist"
)

// PlaylistProviderConfig represents the playlist provider settings.
type PlaylistProviderConfig struct {
	Name    string   `yaml:"name" mapstructure:"name" default:"autoplay"`
	Queries []string `yaml:"queries" mapstructure:"queries" validate:"required,min=1"`
	Shuffle bool     `yaml:"shuffle" mapstructure:"shuffle"`
}

// PlaylistProvider proposes queries from a config-declared list, round
// robin by default, random order when shuffle is set. The rotation
// cursor is shared across chats.
type PlaylistProvider struct {
	config   *PlaylistProviderConfig
	rotation *playlist.Playlist
	rng      *rand.Rand
}

// NewPlaylistProvider creates a playlist provider from settings.
func NewPlaylistProvider(settings map[string]any) (*PlaylistProvider, error) {
	var config PlaylistProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("autoplay: playlist provider config: name=%s queries=%d shuffle=%v",
		config.Name, len(config.Queries), config.Shuffle)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	rotation := playlist.New(config.Name, config.Queries)
	if rotation.Len() == 0 {
		return nil, errors.New("playlist has no usable queries")
	}

	return &PlaylistProvider{
		config:   &config,
		rotation: rotation,
		rng:      newSeededRand(),
	}, nil
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string {
	return "playlist"
}

// Propose returns the next queries in rotation, or a random sample when
// shuffle is configured.
func (p *PlaylistProvider) Propose(_ context.Context, req Request) ([]string, error) {
	if req.Count <= 0 {
		return nil, nil
	}

	n := req.Count
	if n > p.rotation.Len() {
		n = p.rotation.Len()
	}

	if p.config.Shuffle {
		queries := p.rotation.Queries()
		p.rng.Shuffle(len(queries), func(i, j int) {
			queries[i], queries[j] = queries[j], queries[i]
		})
		return queries[:n], nil
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		q, ok := p.rotation.Next()
		if !ok {
			break
		}
		out = append(out, q)
	}
	return out, nil
}
