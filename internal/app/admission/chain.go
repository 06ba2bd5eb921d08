package admission

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/domain/track"
)

// Chain executes rules in sequence and stops at the first rejection.
type Chain struct {
	rules []Rule
}

// NewChain creates an empty chain. An empty chain accepts everything.
func NewChain() *Chain {
	return &Chain{
		rules: make([]Rule, 0),
	}
}

// BuildChain instantiates and configures the named rules. Rule order is
// alphabetical by name so behavior does not depend on map iteration.
func BuildChain(enabled map[string]map[string]any) (*Chain, error) {
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	chain := NewChain()
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown admission rule: %s", name)
		}
		rule := factory()
		if err := rule.Configure(enabled[name]); err != nil {
			return nil, errors.Wrapf(err, "configure admission rule %s", name)
		}
		chain.Add(rule)
		zlog.Info().Msgf("admission: rule enabled: %s", name)
	}
	return chain, nil
}

// Add appends a rule to the chain.
func (c *Chain) Add(r Rule) {
	c.rules = append(c.rules, r)
}

// Rules returns all rules in the chain.
func (c *Chain) Rules() []Rule {
	return c.rules
}

// Execute runs the applicable rules in order. The first rejection wins.
func (c *Chain) Execute(ctx context.Context, req Request, t track.Track, current track.Track, q QueueView) Result {
	for _, r := range c.rules {
		if !r.AppliesTo(req.Requester.Type) {
			continue
		}
		result := r.Check(ctx, req, t, current, q)
		if !result.Accepted {
			zlog.Info().Msgf("admission: rejected: chat=%d track=%s rule=%s code=%s",
				req.ChatID, t, result.Rule, result.Code)
			return result
		}
	}
	return Accept()
}
