// Package queue provides the per-chat playback queue.
//
// A Queue has no internal locking. Every queue belongs to exactly one
// playback session and is mutated only on that session's worker, which
// serializes all access (single-writer discipline).
package queue

import (
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/callbox/internal/domain/track"
)

// ErrOutOfRange is returned when a queue index does not exist. The queue
// is left unchanged.
var ErrOutOfRange = errors.New("queue index out of range")

// Queue is an ordered list of pending tracks for one chat. Insertion
// order is the default play order. Duplicate tracks are permitted; size
// is bounded by the admission layer, not validated here.
type Queue struct {
	entries []track.QueueEntry
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{nextSeq: 1}
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Enqueue appends a track and returns its zero-based position.
func (q *Queue) Enqueue(t track.Track, requester track.Requester) int {
	q.entries = append(q.entries, track.QueueEntry{
		Track:     t,
		Seq:       q.nextSeq,
		Requester: requester,
		AddedAt:   time.Now(),
	})
	q.nextSeq++
	return len(q.entries) - 1
}

// DequeueNext removes and returns the head of the queue. When
// loopCurrent is set and a current track exists, it returns a copy of
// the current track instead, without consuming the queue. The second
// return is false when there is nothing to play.
func (q *Queue) DequeueNext(current track.Track, loopCurrent bool) (track.Track, bool) {
	if loopCurrent && !current.IsZero() {
		return current, true
	}
	if len(q.entries) == 0 {
		return track.Track{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head.Track, true
}

// Remove deletes the entry at index and returns it.
func (q *Queue) Remove(index int) (track.QueueEntry, error) {
	if index < 0 || index >= len(q.entries) {
		return track.QueueEntry{}, errors.Wrapf(ErrOutOfRange, "remove index %d, queue size %d", index, len(q.entries))
	}
	removed := q.entries[index]
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	return removed, nil
}

// Move relocates the entry at from so it ends up at index to. Both
// indexes refer to the queue as it is before the call.
func (q *Queue) Move(from, to int) error {
	if from < 0 || from >= len(q.entries) || to < 0 || to >= len(q.entries) {
		return errors.Wrapf(ErrOutOfRange, "move %d -> %d, queue size %d", from, to, len(q.entries))
	}
	if from == to {
		return nil
	}
	entry := q.entries[from]
	q.entries = append(q.entries[:from], q.entries[from+1:]...)
	q.entries = append(q.entries[:to], append([]track.QueueEntry{entry}, q.entries[to:]...)...)
	return nil
}

// SkipTo drops every entry before index so that entry plays next.
func (q *Queue) SkipTo(index int) error {
	if index < 0 || index >= len(q.entries) {
		return errors.Wrapf(ErrOutOfRange, "skip to %d, queue size %d", index, len(q.entries))
	}
	q.entries = q.entries[index:]
	return nil
}

// Shuffle randomizes the order of all pending entries in place.
// The previous order is discarded and cannot be restored.
func (q *Queue) Shuffle() {
	rand.Shuffle(len(q.entries), func(i, j int) {
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	})
}

// Clear drops all pending entries.
func (q *Queue) Clear() {
	q.entries = nil
}

// Snapshot returns a copy of all pending entries in play order.
func (q *Queue) Snapshot() []track.QueueEntry {
	out := make([]track.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Restore replaces the queue contents, keeping sequence numbers from the
// given entries. Used when rebuilding a session from a snapshot.
func (q *Queue) Restore(entries []track.QueueEntry) {
	q.entries = make([]track.QueueEntry, len(entries))
	copy(q.entries, entries)
	q.nextSeq = 1
	for _, e := range entries {
		if e.Seq >= q.nextSeq {
			q.nextSeq = e.Seq + 1
		}
	}
}

// Contains reports whether a track with the given source ID is pending.
func (q *Queue) Contains(trackID string) bool {
	for _, e := range q.entries {
		if e.Track.ID == trackID {
			return true
		}
	}
	return false
}

// Page returns the 1-based page of entries and the total page count.
// An out-of-bounds page is clamped into range; perPage must be positive.
func (q *Queue) Page(page, perPage int) ([]track.QueueEntry, int) {
	if perPage <= 0 {
		perPage = 10
	}
	totalPages := (len(q.entries) + perPage - 1) / perPage
	if totalPages == 0 {
		return nil, 0
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(q.entries) {
		end = len(q.entries)
	}
	out := make([]track.QueueEntry, end-start)
	copy(out, q.entries[start:end])
	return out, totalPages
}
