package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaylist_Next(t *testing.T) {
	tests := []struct {
		name     string
		queries  []string
		draws    int
		expected []string
	}{
		{
			name:     "empty playlist",
			queries:  []string{},
			draws:    2,
			expected: []string{"", ""},
		},
		{
			name:     "single query repeats",
			queries:  []string{"a"},
			draws:    3,
			expected: []string{"a", "a", "a"},
		},
		{
			name:     "round robin wraps",
			queries:  []string{"a", "b", "c"},
			draws:    5,
			expected: []string{"a", "b", "c", "a", "b"},
		},
		{
			name:     "blank queries dropped",
			queries:  []string{"a", "", "b"},
			draws:    3,
			expected: []string{"a", "b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("test", tt.queries)

			for i := 0; i < tt.draws; i++ {
				q, ok := p.Next()
				assert.Equal(t, tt.expected[i], q)
				assert.Equal(t, tt.expected[i] != "", ok)
			}
		})
	}
}

func TestPlaylist_Queries(t *testing.T) {
	p := New("test", []string{"a", "b"})
	assert.Equal(t, 2, p.Len())

	qs := p.Queries()
	qs[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, p.Queries())
}
