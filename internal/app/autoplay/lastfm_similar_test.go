package autoplay

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/lastfm"
)

// fakeLastFM serves canned Last.fm responses.
type fakeLastFM struct {
	similar    []lastfm.SimilarTrack
	similarErr error
	chart      []lastfm.TopTrack
	chartErr   error
	chartCalls int
}

func (f *fakeLastFM) GetSimilarTracks(_ context.Context, _, _ string, _ int) ([]lastfm.SimilarTrack, error) {
	return f.similar, f.similarErr
}

func (f *fakeLastFM) GetChartTopTracks(_ context.Context, _ int) ([]lastfm.TopTrack, error) {
	f.chartCalls++
	return f.chart, f.chartErr
}

func newLastFMProviderWith(t *testing.T, client LastFMClient) *LastFMSimilarProvider {
	t.Helper()
	p, err := NewLastFMSimilarProvider(map[string]any{"api_key": "test_key"})
	require.NoError(t, err)
	p.client = client
	return p
}

func TestLastFMSimilarProposesFromSeed(t *testing.T) {
	client := &fakeLastFM{
		similar: []lastfm.SimilarTrack{
			{Name: "Song A", Artist: "Artist A"},
			{Name: "Song B", Artist: "Artist B"},
			{Name: "Song C", Artist: "Artist C"},
		},
	}
	p := newLastFMProviderWith(t, client)

	got, err := p.Propose(context.Background(), Request{
		Count: 3,
		Seed:  track.Track{ID: "seed", Title: "Seed Song", Artist: "Seed Artist"},
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.ElementsMatch(t, []string{"Artist A Song A", "Artist B Song B", "Artist C Song C"}, got)
	assert.Zero(t, client.chartCalls)
}

func TestLastFMSimilarSkipsRecentlyPlayed(t *testing.T) {
	client := &fakeLastFM{
		similar: []lastfm.SimilarTrack{
			{Name: "Song A", Artist: "Artist A"},
			{Name: "Seed Song", Artist: "Seed Artist"}, // the seed itself
			{Name: "Already Played", Artist: "Artist B"},
		},
	}
	p := newLastFMProviderWith(t, client)

	got, err := p.Propose(context.Background(), Request{
		Count: 5,
		Seed:  track.Track{ID: "seed", Title: "Seed Song", Artist: "Seed Artist"},
		Recent: []track.Track{
			{ID: "r1", Title: "already played", Artist: "artist b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Artist A Song A"}, got)
}

func TestLastFMSimilarChartFallback(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "no seed",
			req:  Request{Count: 2},
		},
		{
			name: "seed without artist",
			req:  Request{Count: 2, Seed: track.Track{ID: "x", Title: "Untagged"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeLastFM{
				chart: []lastfm.TopTrack{
					{Name: "Hit One", Artist: "Star"},
					{Name: "Hit Two", Artist: "Star"},
				},
			}
			p := newLastFMProviderWith(t, client)

			got, err := p.Propose(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Len(t, got, 2)
			assert.Equal(t, 1, client.chartCalls)
		})
	}
}

func TestLastFMSimilarFallsBackWhenNoSimilar(t *testing.T) {
	client := &fakeLastFM{
		chart: []lastfm.TopTrack{{Name: "Hit", Artist: "Star"}},
	}
	p := newLastFMProviderWith(t, client)

	got, err := p.Propose(context.Background(), Request{
		Count: 1,
		Seed:  track.Track{ID: "seed", Title: "Obscure", Artist: "Nobody"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Star Hit"}, got)
	assert.Equal(t, 1, client.chartCalls)
}

func TestLastFMSimilarPropagatesAPIError(t *testing.T) {
	client := &fakeLastFM{similarErr: errors.New("api down")}
	p := newLastFMProviderWith(t, client)

	_, err := p.Propose(context.Background(), Request{
		Count: 1,
		Seed:  track.Track{ID: "seed", Title: "Song", Artist: "Artist"},
	})
	assert.Error(t, err)
}

func TestLastFMSimilarConfig(t *testing.T) {
	_, err := NewLastFMSimilarProvider(map[string]any{})
	assert.Error(t, err, "api_key is required")

	p, err := NewLastFMSimilarProvider(map[string]any{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, 30, p.config.FetchLimit)
	assert.Equal(t, "lastfm_similar", p.Name())

	_, err = NewLastFMSimilarProvider(map[string]any{"api_key": "k", "fetch_limit": 500})
	assert.Error(t, err)
}
