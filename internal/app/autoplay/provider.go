// Package autoplay proposes tracks to keep a chat playing after its
// queue runs out. Proposals are plain track queries dispatched through
// the ordinary command path, so they are resolved and admitted exactly
// like user requests.
package autoplay

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/osa030/callbox/internal/domain/track"
)

// Request describes what a chat needs proposed.
type Request struct {
	ChatID int64
	Count  int           // how many queries to propose
	Seed   track.Track   // the last played track; may be zero
	Recent []track.Track // recent history, oldest first, for repeat avoidance
}

// Provider proposes track queries for a chat. A proposal is a hint, not
// a guarantee: resolution or admission may still reject it downstream.
type Provider interface {
	// Name returns the provider name used in config and logs.
	Name() string
	// Propose returns up to req.Count track queries.
	Propose(ctx context.Context, req Request) ([]string, error)
}

// newSeededRand returns a rand source seeded from crypto/rand, falling
// back to the clock when the system source is unavailable.
func newSeededRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
