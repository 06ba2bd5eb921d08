package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/domain/track"
)

func mkTrack(id string) track.Track {
	return track.Track{ID: id, Title: id, URL: "https://example.com/" + id}
}

func requester() track.Requester {
	return track.Requester{Name: "tester", Type: track.RequesterTypeUser}
}

func fill(q *Queue, ids ...string) {
	for _, id := range ids {
		q.Enqueue(mkTrack(id), requester())
	}
}

func ids(entries []track.QueueEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Track.ID
	}
	return out
}

func TestQueue_FIFO(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Enqueue(mkTrack("A"), requester()))
	assert.Equal(t, 1, q.Enqueue(mkTrack("B"), requester()))
	assert.Equal(t, 2, q.Enqueue(mkTrack("C"), requester()))

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.DequeueNext(track.Track{}, false)
		require.True(t, ok)
		assert.Equal(t, want, got.ID)
	}

	_, ok := q.DequeueNext(track.Track{}, false)
	assert.False(t, ok)
}

func TestQueue_DequeueNext_Loop(t *testing.T) {
	q := New()
	fill(q, "A", "B")
	current := mkTrack("X")

	got, ok := q.DequeueNext(current, true)
	require.True(t, ok)
	assert.Equal(t, "X", got.ID)
	assert.Equal(t, 2, q.Len(), "loop must not consume the queue")

	// Loop with no current track falls through to the queue head.
	got, ok = q.DequeueNext(track.Track{}, true)
	require.True(t, ok)
	assert.Equal(t, "A", got.ID)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_Move(t *testing.T) {
	tests := []struct {
		name     string
		initial  []string
		from, to int
		wantErr  bool
		expected []string
	}{
		{
			name:     "head to tail",
			initial:  []string{"A", "B", "C"},
			from:     0,
			to:       2,
			expected: []string{"B", "C", "A"},
		},
		{
			name:     "tail to head",
			initial:  []string{"A", "B", "C"},
			from:     2,
			to:       0,
			expected: []string{"C", "A", "B"},
		},
		{
			name:     "same index is a no-op",
			initial:  []string{"A", "B"},
			from:     1,
			to:       1,
			expected: []string{"A", "B"},
		},
		{
			name:     "from out of range",
			initial:  []string{"A", "B", "C"},
			from:     3,
			to:       0,
			wantErr:  true,
			expected: []string{"A", "B", "C"},
		},
		{
			name:     "negative to",
			initial:  []string{"A", "B", "C"},
			from:     0,
			to:       -1,
			wantErr:  true,
			expected: []string{"A", "B", "C"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			fill(q, tt.initial...)

			err := q.Move(tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrOutOfRange)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, ids(q.Snapshot()))
		})
	}
}

func TestQueue_Remove(t *testing.T) {
	tests := []struct {
		name      string
		initial   []string
		index     int
		wantErr   bool
		removed   string
		remaining []string
	}{
		{
			name:      "remove head",
			initial:   []string{"A", "B", "C"},
			index:     0,
			removed:   "A",
			remaining: []string{"B", "C"},
		},
		{
			name:      "remove middle",
			initial:   []string{"A", "B", "C"},
			index:     1,
			removed:   "B",
			remaining: []string{"A", "C"},
		},
		{
			name:      "index past end",
			initial:   []string{"A"},
			index:     1,
			wantErr:   true,
			remaining: []string{"A"},
		},
		{
			name:      "empty queue",
			initial:   nil,
			index:     0,
			wantErr:   true,
			remaining: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			fill(q, tt.initial...)

			entry, err := q.Remove(tt.index)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrOutOfRange)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.removed, entry.Track.ID)
			}
			assert.Equal(t, tt.remaining, ids(q.Snapshot()))
		})
	}
}

func TestQueue_SkipTo(t *testing.T) {
	q := New()
	fill(q, "A", "B", "C", "D")

	require.NoError(t, q.SkipTo(2))
	assert.Equal(t, []string{"C", "D"}, ids(q.Snapshot()))

	err := q.SkipTo(5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, []string{"C", "D"}, ids(q.Snapshot()))
}

func TestQueue_Shuffle(t *testing.T) {
	q := New()
	all := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	fill(q, all...)

	q.Shuffle()

	got := ids(q.Snapshot())
	assert.Len(t, got, len(all))
	assert.ElementsMatch(t, all, got, "shuffle must be a permutation of the same elements")
}

func TestQueue_Clear(t *testing.T) {
	q := New()
	fill(q, "A", "B")

	q.Clear()
	assert.Equal(t, 0, q.Len())

	_, ok := q.DequeueNext(track.Track{}, false)
	assert.False(t, ok)
}

func TestQueue_Contains(t *testing.T) {
	q := New()
	fill(q, "A", "B")

	assert.True(t, q.Contains("A"))
	assert.False(t, q.Contains("Z"))
}

func TestQueue_Restore(t *testing.T) {
	q := New()
	fill(q, "A", "B", "C")
	saved := q.Snapshot()

	restored := New()
	restored.Restore(saved)
	assert.Equal(t, []string{"A", "B", "C"}, ids(restored.Snapshot()))

	// New sequence numbers continue past the restored ones.
	restored.Enqueue(mkTrack("D"), requester())
	entries := restored.Snapshot()
	assert.Greater(t, entries[3].Seq, entries[2].Seq)
}

func TestQueue_Page(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		page      int
		perPage   int
		wantIDs   []string
		wantPages int
	}{
		{
			name:      "first page",
			total:     12,
			page:      1,
			perPage:   5,
			wantIDs:   []string{"t00", "t01", "t02", "t03", "t04"},
			wantPages: 3,
		},
		{
			name:      "last partial page",
			total:     12,
			page:      3,
			perPage:   5,
			wantIDs:   []string{"t10", "t11"},
			wantPages: 3,
		},
		{
			name:      "page past end clamps to last",
			total:     4,
			page:      9,
			perPage:   5,
			wantIDs:   []string{"t00", "t01", "t02", "t03"},
			wantPages: 1,
		},
		{
			name:      "empty queue",
			total:     0,
			page:      1,
			perPage:   5,
			wantIDs:   nil,
			wantPages: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			for i := 0; i < tt.total; i++ {
				q.Enqueue(mkTrack(pageID(i)), requester())
			}

			entries, pages := q.Page(tt.page, tt.perPage)
			assert.Equal(t, tt.wantPages, pages)
			if tt.wantIDs == nil {
				assert.Empty(t, entries)
			} else {
				assert.Equal(t, tt.wantIDs, ids(entries))
			}
		})
	}
}

func pageID(i int) string {
	return "t" + string(rune('0'+i/10)) + string(rune('0'+i%10))
}
