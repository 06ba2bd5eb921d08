package autoplay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistProviderRotation(t *testing.T) {
	p, err := NewPlaylistProvider(map[string]any{
		"queries": []string{"song one", "song two", "song three"},
	})
	require.NoError(t, err)
	assert.Equal(t, "playlist", p.Name())

	ctx := context.Background()

	got, err := p.Propose(ctx, Request{Count: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"song one", "song two"}, got)

	// The cursor survives across calls and wraps around.
	got, err = p.Propose(ctx, Request{Count: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"song three", "song one"}, got)
}

func TestPlaylistProviderClampsCount(t *testing.T) {
	p, err := NewPlaylistProvider(map[string]any{
		"queries": []string{"only song"},
	})
	require.NoError(t, err)

	got, err := p.Propose(context.Background(), Request{Count: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"only song"}, got)

	got, err = p.Propose(context.Background(), Request{Count: 0})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlaylistProviderShuffle(t *testing.T) {
	queries := []string{"a", "b", "c", "d", "e"}
	p, err := NewPlaylistProvider(map[string]any{
		"queries": queries,
		"shuffle": true,
	})
	require.NoError(t, err)

	got, err := p.Propose(context.Background(), Request{Count: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, q := range got {
		assert.Contains(t, queries, q)
	}
	// No duplicates within one proposal.
	seen := map[string]bool{}
	for _, q := range got {
		assert.False(t, seen[q], "duplicate proposal %q", q)
		seen[q] = true
	}
}

func TestPlaylistProviderConfig(t *testing.T) {
	tests := []struct {
		name      string
		settings  map[string]any
		expectErr bool
	}{
		{
			name:     "valid settings",
			settings: map[string]any{"queries": []string{"x"}},
		},
		{
			name:      "missing queries",
			settings:  map[string]any{},
			expectErr: true,
		},
		{
			name:      "empty queries list",
			settings:  map[string]any{"queries": []string{}},
			expectErr: true,
		},
		{
			name:      "only blank queries",
			settings:  map[string]any{"queries": []string{""}},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlaylistProvider(tt.settings)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
