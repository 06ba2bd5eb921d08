package admission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimitRule.
type DurationLimitConfig struct {
	MinSeconds float64 `yaml:"min_seconds" mapstructure:"min_seconds" validate:"gte=0"`
	MaxSeconds float64 `yaml:"max_seconds" mapstructure:"max_seconds" default:"600" validate:"gte=0"`
}

// DurationLimitRule rejects tracks outside the allowed duration range.
// Live streams have no known duration and always pass.
type DurationLimitRule struct {
	config *DurationLimitConfig
}

// NewDurationLimitRule creates a new duration limit rule.
func NewDurationLimitRule() *DurationLimitRule {
	return &DurationLimitRule{}
}

func (r *DurationLimitRule) Name() string {
	return "duration_limit"
}

func (r *DurationLimitRule) Description() string {
	return "Rejects tracks whose duration is outside the allowed range"
}

func (r *DurationLimitRule) ReturnCodes() []string {
	return []string{"duration_limit_exceeded"}
}

func (r *DurationLimitRule) Configure(settings map[string]any) error {
	var config DurationLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	// max_seconds 0 means no upper limit.
	if config.MaxSeconds > 0 && config.MinSeconds > config.MaxSeconds {
		return errors.New("min_seconds cannot be greater than max_seconds")
	}

	r.config = &config
	zlog.Info().Msgf("duration limit rule config: %+v", config)
	return nil
}

func (r *DurationLimitRule) AppliesTo(requesterType track.RequesterType) bool {
	// Admins and system tracks bypass the limit.
	return requesterType == track.RequesterTypeUser ||
		requesterType == track.RequesterTypeAutoplay
}

func (r *DurationLimitRule) Check(ctx context.Context, req Request, t track.Track, current track.Track, q QueueView) Result {
	// Unconfigured rule accepts everything.
	if r.config == nil {
		return Accept()
	}
	if t.IsLive() {
		return Accept()
	}

	seconds := t.Duration.Seconds()
	if seconds < r.config.MinSeconds {
		return Reject(r.Name(), "duration_limit_exceeded")
	}
	if r.config.MaxSeconds > 0 && seconds > r.config.MaxSeconds {
		return Reject(r.Name(), "duration_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("duration_limit", func() Rule {
		return NewDurationLimitRule()
	})
}
