package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTrackID(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expectedID string
		expectedOK bool
	}{
		{
			name:       "Spotify URI format",
			input:      "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			expectedID: "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "Spotify URL format",
			input:      "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			expectedID: "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "Spotify URL with query params",
			input:      "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123",
			expectedID: "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "Spotify URL with intl segment",
			input:      "https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC",
			expectedID: "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "Bare track ID",
			input:      "4uLU6hMCjMI75M1A2tKUQC",
			expectedID: "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "Free text query",
			input:      "never gonna give you up",
			expectedOK: false,
		},
		{
			name:       "Empty string",
			input:      "",
			expectedOK: false,
		},
		{
			name:       "Short token is not an ID",
			input:      "abc123",
			expectedOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractTrackID(tt.input)
			assert.Equal(t, tt.expectedOK, ok)
			if tt.expectedOK {
				assert.Equal(t, tt.expectedID, id)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
