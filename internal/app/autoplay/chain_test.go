package autoplay

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/osa030/callbox/internal/domain/track"
)

// stubProvider returns canned queries or a canned error. The call
// counter is atomic; watcher tests read it across goroutines.
type stubProvider struct {
	name    string
	queries []string
	err     error
	calls   atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Propose(_ context.Context, req Request) ([]string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.queries) > req.Count {
		return s.queries[:req.Count], nil
	}
	return s.queries, nil
}

func TestChainFirstProviderServes(t *testing.T) {
	first := &stubProvider{name: "first", queries: []string{"a", "b"}}
	second := &stubProvider{name: "second", queries: []string{"c"}}
	chain := NewChain(first, second)

	got := chain.Propose(context.Background(), Request{ChatID: 1, Count: 2})
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(0), second.calls.Load(), "second provider should not run once count is reached")
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	broken := &stubProvider{name: "broken", err: errors.New("api down")}
	backup := &stubProvider{name: "backup", queries: []string{"c"}}
	chain := NewChain(broken, backup)

	got := chain.Propose(context.Background(), Request{ChatID: 1, Count: 1})
	assert.Equal(t, []string{"c"}, got)
}

func TestChainAccumulatesAcrossProviders(t *testing.T) {
	first := &stubProvider{name: "first", queries: []string{"a"}}
	second := &stubProvider{name: "second", queries: []string{"b", "c"}}
	chain := NewChain(first, second)

	got := chain.Propose(context.Background(), Request{ChatID: 1, Count: 3})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestChainDeduplicatesQueries(t *testing.T) {
	first := &stubProvider{name: "first", queries: []string{"Same Song", ""}}
	second := &stubProvider{name: "second", queries: []string{"same song", "Other Song"}}
	chain := NewChain(first, second)

	got := chain.Propose(context.Background(), Request{ChatID: 1, Count: 4})
	assert.Equal(t, []string{"Same Song", "Other Song"}, got)
}

func TestChainEmptyWhenNothingToOffer(t *testing.T) {
	chain := NewChain(&stubProvider{name: "empty"})
	got := chain.Propose(context.Background(), Request{ChatID: 1, Count: 2, Seed: track.Track{ID: "x"}})
	assert.Empty(t, got)

	noProviders := NewChain()
	assert.Empty(t, noProviders.Propose(context.Background(), Request{ChatID: 1, Count: 2}))
}
