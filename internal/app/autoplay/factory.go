package autoplay

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg config.AutoplayConfig) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no autoplay providers configured")
	}

	var providers []Provider

	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("autoplay: creating provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "playlist":
			provider, err = NewPlaylistProvider(pcfg.Settings)

		case "lastfm_similar":
			provider, err = NewLastFMSimilarProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, provider)
		zlog.Info().Msgf("autoplay: registered provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewChain(providers...), nil
}
