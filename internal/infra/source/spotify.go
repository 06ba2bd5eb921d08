package source

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/config"
)

// trackIDPattern matches a bare Spotify track ID (22 base62 characters).
var trackIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// Spotify resolves queries against the Spotify catalog.
type Spotify struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// NewSpotify creates a Spotify resolver. The refresh token is exchanged
// for access tokens automatically by the oauth2 transport.
func NewSpotify(ctx context.Context, cfg config.SpotifyConfig) (*Spotify, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := auth.Client(ctx, token)

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Spotify{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Name returns "spotify".
func (s *Spotify) Name() string { return "spotify" }

// Resolve resolves a track reference (URI, URL, bare ID) by lookup, or
// free text by search, returning the best match.
func (s *Spotify) Resolve(ctx context.Context, query string) (track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.Track{}, errors.New("query is required")
	}

	if id, ok := extractTrackID(query); ok {
		return s.getTrack(ctx, id)
	}
	return s.search(ctx, query)
}

// getTrack retrieves track information by ID.
func (s *Spotify) getTrack(ctx context.Context, id string) (track.Track, error) {
	var result *spotify.FullTrack
	err := s.retry(func() error {
		t, err := s.client.GetTrack(ctx, spotify.ID(id), spotify.Market(s.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to get track %s", id)
	}
	return s.convertTrack(result), nil
}

// search searches the catalog and returns the first track hit.
func (s *Spotify) search(ctx context.Context, query string) (track.Track, error) {
	var result *spotify.SearchResult
	err := s.retry(func() error {
		r, err := s.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(1), spotify.Market(s.market))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return track.Track{}, errors.Newf("no track found for %q", query)
	}
	return s.convertTrack(&result.Tracks.Tracks[0]), nil
}

// convertTrack converts a Spotify FullTrack to a domain Track.
func (s *Spotify) convertTrack(t *spotify.FullTrack) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	return track.Track{
		ID:         string(t.ID),
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      t.Album.Name,
		ArtworkURL: artwork,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		URL:        "https://open.spotify.com/track/" + string(t.ID),
		Source:     s.Name(),
	}
}

// retry retries an operation with linear backoff.
func (s *Spotify) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < s.maxRetries-1 {
			time.Sleep(s.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable. Rate limit and server
// errors are; everything else is not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractTrackID extracts the track ID from a Spotify track URI, URL,
// or bare ID. The second return is false for free-text queries.
func extractTrackID(input string) (string, bool) {
	input = strings.TrimSpace(input)

	// URI format: spotify:track:TRACK_ID
	if rest, ok := strings.CutPrefix(input, "spotify:track:"); ok {
		return rest, true
	}

	// URL format: https://open.spotify.com/track/TRACK_ID, optionally
	// with an intl-XX path segment and query parameters.
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		id = strings.TrimRight(id, "/")
		return id, true
	}

	if trackIDPattern.MatchString(input) {
		return input, true
	}
	return "", false
}
