package admission

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/callbox/internal/domain/track"
)

// DuplicateTrackRule rejects tracks already playing or queued.
// Detects:
// - Exact track ID matches
// - Remasters (normalized title + same artist)
// Excludes:
// - Covers (same title, different artist)
type DuplicateTrackRule struct{}

// NewDuplicateTrackRule creates a new duplicate track rule.
func NewDuplicateTrackRule() *DuplicateTrackRule {
	return &DuplicateTrackRule{}
}

func (r *DuplicateTrackRule) Name() string {
	return "duplicate_track"
}

func (r *DuplicateTrackRule) Description() string {
	return "Rejects tracks already in the queue, remasters included; covers pass"
}

func (r *DuplicateTrackRule) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (r *DuplicateTrackRule) Configure(settings map[string]any) error {
	// No configuration needed.
	return nil
}

func (r *DuplicateTrackRule) AppliesTo(requesterType track.RequesterType) bool {
	// User requests only; autoplay picks are already deduplicated by
	// the provider.
	return requesterType == track.RequesterTypeUser
}

func (r *DuplicateTrackRule) Check(ctx context.Context, req Request, t track.Track, current track.Track, q QueueView) Result {
	if !current.IsZero() && r.sameSong(current, t) {
		return Reject(r.Name(), "duplicate_track")
	}
	for _, entry := range q.Snapshot() {
		if r.sameSong(entry.Track, t) {
			return Reject(r.Name(), "duplicate_track")
		}
	}
	return Accept()
}

// sameSong reports whether two tracks are the same recording, treating
// remasters and alternate versions as duplicates.
func (r *DuplicateTrackRule) sameSong(a, b track.Track) bool {
	if a.ID == b.ID {
		return true
	}
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	// Same normalized title with a different artist is a cover.
	return isSameArtist(a, b)
}

var remasterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
	regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
	regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
	regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
	regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
	regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
}

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
	regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
	regexp.MustCompile(`\s*-?\s*live`),             // "- Live"
	regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
	regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
	regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
}

var spaceRun = regexp.MustCompile(`\s+`)

// normalizeTitle strips remaster and version decorations from a title.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaceRun.ReplaceAllString(normalized, " ")
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// isSameArtist compares main artists case-insensitively.
func isSameArtist(a, b track.Track) bool {
	if a.Artist == "" || b.Artist == "" {
		return false
	}
	return strings.EqualFold(a.Artist, b.Artist)
}

func init() {
	Register("duplicate_track", func() Rule {
		return NewDuplicateTrackRule()
	})
}
