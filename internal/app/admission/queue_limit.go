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

// QueueLimitConfig represents the configuration for QueueLimitRule.
type QueueLimitConfig struct {
	MaxLength int `yaml:"max_length" mapstructure:"max_length" default:"50" validate:"gte=1"`
}

// QueueLimitRule rejects tracks once the queue reaches its maximum
// length.
type QueueLimitRule struct {
	config *QueueLimitConfig
}

// NewQueueLimitRule creates a new queue limit rule.
func NewQueueLimitRule() *QueueLimitRule {
	return &QueueLimitRule{}
}

func (r *QueueLimitRule) Name() string {
	return "queue_limit"
}

func (r *QueueLimitRule) Description() string {
	return "Rejects tracks once the queue is full"
}

func (r *QueueLimitRule) ReturnCodes() []string {
	return []string{"queue_full"}
}

func (r *QueueLimitRule) Configure(settings map[string]any) error {
	var config QueueLimitConfig

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

	r.config = &config
	zlog.Info().Msgf("queue limit rule config: %+v", config)
	return nil
}

func (r *QueueLimitRule) AppliesTo(requesterType track.RequesterType) bool {
	return requesterType == track.RequesterTypeUser ||
		requesterType == track.RequesterTypeAutoplay
}

func (r *QueueLimitRule) Check(ctx context.Context, req Request, t track.Track, current track.Track, q QueueView) Result {
	if r.config == nil {
		return Accept()
	}
	if q.Len() >= r.config.MaxLength {
		return Reject(r.Name(), "queue_full")
	}
	return Accept()
}

func init() {
	Register("queue_limit", func() Rule {
		return NewQueueLimitRule()
	})
}
