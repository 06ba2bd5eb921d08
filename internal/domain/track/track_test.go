package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrack_IsLive(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected bool
	}{
		{
			name:     "known duration",
			duration: 3 * time.Minute,
			expected: false,
		},
		{
			name:     "zero duration is live",
			duration: 0,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := Track{ID: "test-id", Duration: tt.duration}
			assert.Equal(t, tt.expected, track.IsLive())
		})
	}
}

func TestTrack_String(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "artist and title",
			track:    Track{Title: "Blue Train", Artist: "John Coltrane"},
			expected: "John Coltrane - Blue Train",
		},
		{
			name:     "title only",
			track:    Track{Title: "Untitled Stream"},
			expected: "Untitled Stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.String())
		})
	}
}

func TestTrack_IsZero(t *testing.T) {
	assert.True(t, Track{}.IsZero())
	assert.False(t, Track{ID: "abc"}.IsZero())
	assert.False(t, Track{URL: "https://example.com/a.mp3"}.IsZero())
}
