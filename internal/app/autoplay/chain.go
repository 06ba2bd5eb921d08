package autoplay

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"
)

// Chain tries providers in order, accumulating proposals until the
// requested count is reached. A failing provider is skipped, not fatal.
type Chain struct {
	providers []Provider
}

// NewChain creates a provider chain.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Providers returns the chained providers in order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Propose collects up to req.Count queries across the chain. Queries
// are deduplicated case-insensitively. An empty result means no
// provider had anything to offer.
func (c *Chain) Propose(ctx context.Context, req Request) []string {
	var proposals []string
	seen := make(map[string]bool)

	for i, p := range c.providers {
		if len(proposals) >= req.Count {
			break
		}
		zlog.Debug().Msgf("autoplay: trying provider: index=%d total=%d name=%s",
			i+1, len(c.providers), p.Name())

		remaining := req.Count - len(proposals)
		queries, err := p.Propose(ctx, Request{
			ChatID: req.ChatID,
			Count:  remaining,
			Seed:   req.Seed,
			Recent: req.Recent,
		})
		if err != nil {
			zlog.Warn().Msgf("autoplay: provider failed, trying next: provider=%s err=%v", p.Name(), err)
			continue
		}

		for _, q := range queries {
			key := strings.ToLower(strings.TrimSpace(q))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			proposals = append(proposals, q)
			if len(proposals) >= req.Count {
				break
			}
		}
	}

	return proposals
}
