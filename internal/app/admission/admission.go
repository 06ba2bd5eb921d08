// Package admission validates tracks before they enter a chat's queue.
// Rules are the service-level guardrails; platform rate limiting stays
// outside the core.
package admission

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/callbox/internal/domain/track"
)

// ErrDenied is returned when any rule rejects a track.
var ErrDenied = errors.New("track admission denied")

// Request carries the context of one enqueue attempt.
type Request struct {
	ChatID    int64
	Requester track.Requester
}

// QueueView is the read-only slice of queue state rules may inspect.
// *queue.Queue satisfies it.
type QueueView interface {
	Len() int
	Snapshot() []track.QueueEntry
}

// Result represents the outcome of a rule check.
type Result struct {
	Accepted bool
	Code     string // e.g. "duplicate_track", "queue_full"
	Rule     string // Name of the rejecting rule
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(rule, code string) Result {
	return Result{Accepted: false, Code: code, Rule: rule}
}

// Err converts a result into an error, nil when accepted.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return errors.Wrapf(ErrDenied, "%s (%s)", r.Code, r.Rule)
}

// Rule is a single admission check.
type Rule interface {
	// Name returns the rule name used in configuration.
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this rule can return.
	ReturnCodes() []string
	// Configure validates and applies the rule settings.
	Configure(settings map[string]any) error
	// AppliesTo returns true if the rule applies to the requester type.
	AppliesTo(requesterType track.RequesterType) bool
	// Check performs the admission check. current is the track playing
	// now, zero when the session is idle.
	Check(ctx context.Context, req Request, t track.Track, current track.Track, q QueueView) Result
}

// registry holds registered rule factories.
var registry = make(map[string]func() Rule)

// Register registers a rule factory.
func Register(name string, factory func() Rule) {
	registry[name] = factory
}

// Registered returns all registered rule factories.
func Registered() map[string]func() Rule {
	return registry
}
