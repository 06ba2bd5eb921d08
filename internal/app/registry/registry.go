// Package registry owns the playback sessions, one per chat, and
// serializes all mutations through a per-chat worker goroutine.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/callbox/internal/app/admission"
	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/domain/snapshot"
	"github.com/osa030/callbox/internal/domain/track"
)

var (
	ErrNoSession = errors.New("no active session for chat")
	ErrShutdown  = errors.New("registry is shut down")
)

// Resolver turns a user query into a playable track.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.Track, error)
}

// mailboxDepth bounds queued commands per chat. Senders block once the
// worker falls this far behind; progress ticks are dropped instead.
const mailboxDepth = 16

// request is one unit of work for a chat worker: either a command with
// a reply, or an internal closure (progress ticks, queue reads).
type request struct {
	cmd   *Command
	fn    func(ctx context.Context)
	reply chan response
}

type response struct {
	result Result
	err    error
}

// handle pairs a session with its worker plumbing.
type handle struct {
	chatID  int64
	sess    *playback.Session
	mailbox chan request
	done    chan struct{} // closed when the worker exits

	// opCancel aborts the in-flight command's context. Stop uses it to
	// cut short a blocking resolve or attach ahead of its own turn.
	opMu     sync.Mutex
	opCancel context.CancelFunc
}

func (h *handle) newOpContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	h.opMu.Lock()
	h.opCancel = cancel
	h.opMu.Unlock()
	return ctx
}

func (h *handle) clearOp() {
	h.opMu.Lock()
	if h.opCancel != nil {
		h.opCancel()
		h.opCancel = nil
	}
	h.opMu.Unlock()
}

func (h *handle) cancelInFlight() {
	h.opMu.Lock()
	if h.opCancel != nil {
		h.opCancel()
	}
	h.opMu.Unlock()
}

// Registry creates sessions on demand and routes commands to them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*handle
	closed   bool

	config    playback.Config
	transport playback.Transport
	store     playback.SnapshotStore
	notifier  playback.Notifier
	resolver  Resolver
	admission *admission.Chain

	wg sync.WaitGroup
}

// New creates an empty registry. chain may be nil when no admission
// rules are enabled.
func New(
	cfg playback.Config,
	transport playback.Transport,
	store playback.SnapshotStore,
	notifier playback.Notifier,
	resolver Resolver,
	chain *admission.Chain,
) *Registry {
	if chain == nil {
		chain = admission.NewChain()
	}
	return &Registry{
		sessions:  make(map[int64]*handle),
		config:    cfg,
		transport: transport,
		store:     store,
		notifier:  notifier,
		resolver:  resolver,
		admission: chain,
	}
}

// GetOrCreate returns the chat's session, creating it if absent.
// Concurrent calls for the same chat observe the same instance.
func (r *Registry) GetOrCreate(chatID int64) (*playback.Session, error) {
	h, err := r.getOrCreateHandle(chatID)
	if err != nil {
		return nil, err
	}
	return h.sess, nil
}

func (r *Registry) getOrCreateHandle(chatID int64) (*handle, error) {
	r.mu.RLock()
	h, ok := r.sessions[chatID]
	closed := r.closed
	r.mu.RUnlock()
	if ok {
		return h, nil
	}
	if closed {
		return nil, ErrShutdown
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrShutdown
	}
	if h, ok := r.sessions[chatID]; ok {
		return h, nil
	}

	h = &handle{
		chatID:  chatID,
		mailbox: make(chan request, mailboxDepth),
		done:    make(chan struct{}),
	}
	h.sess = playback.NewSession(chatID, r.config, r.transport, r.store, r.notifier, func(fn func(context.Context)) {
		select {
		case h.mailbox <- request{fn: fn}:
		case <-h.done:
		default:
			// Mailbox full; the next tick will catch up.
		}
	})
	r.sessions[chatID] = h

	r.wg.Add(1)
	go r.runWorker(h)

	zlog.Info().Msgf("registry: session created: chat=%d", chatID)
	return h, nil
}

func (r *Registry) lookup(chatID int64) (*handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[chatID]
	return h, ok
}

func (r *Registry) remove(chatID int64) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
	zlog.Info().Msgf("registry: session removed: chat=%d", chatID)
}

// runWorker drains the chat's mailbox until a stop or suspend retires
// the session. All session mutations happen here.
func (r *Registry) runWorker(h *handle) {
	defer r.wg.Done()
	defer close(h.done)

	for req := range h.mailbox {
		if req.fn != nil {
			req.fn(context.Background())
			continue
		}

		ctx := h.newOpContext()
		res, err := r.apply(ctx, h, req.cmd)
		h.clearOp()
		req.reply <- response{result: res, err: err}

		if req.cmd.Kind == CmdStop || req.cmd.Kind == cmdSuspend {
			r.remove(h.chatID)
			return
		}
	}
}

// apply executes one command against the chat's session.
func (r *Registry) apply(ctx context.Context, h *handle, cmd *Command) (Result, error) {
	sess := h.sess

	switch cmd.Kind {
	case CmdPlay:
		t, err := r.resolveAdmitted(ctx, h, cmd)
		if err != nil {
			return Result{}, err
		}
		if sess.State() == playback.StateIdle {
			if err := sess.Start(ctx, t, cmd.Seek); err != nil {
				return Result{}, err
			}
			return Result{Track: t}, nil
		}
		pos := sess.Enqueue(ctx, t, cmd.Requester)
		return Result{Track: t, Enqueued: true, Position: pos}, nil

	case CmdQueueAdd:
		t, err := r.resolveAdmitted(ctx, h, cmd)
		if err != nil {
			return Result{}, err
		}
		pos := sess.Enqueue(ctx, t, cmd.Requester)
		return Result{Track: t, Enqueued: true, Position: pos}, nil

	case CmdPause:
		return Result{}, sess.Pause(ctx)

	case CmdResume:
		return Result{}, sess.Resume(ctx)

	case CmdSkip:
		if err := sess.Skip(ctx); err != nil {
			return Result{}, err
		}
		return Result{Track: sess.CurrentTrack()}, nil

	case CmdSkipTo:
		if err := sess.SkipTo(ctx, cmd.Index); err != nil {
			return Result{}, err
		}
		return Result{Track: sess.CurrentTrack()}, nil

	case CmdStop:
		return Result{}, sess.Stop(ctx)

	case CmdSeek:
		return Result{}, sess.Seek(ctx, cmd.Seek)

	case CmdQueueRemove:
		entry, err := sess.RemoveFromQueue(ctx, cmd.Index)
		if err != nil {
			return Result{}, err
		}
		return Result{Track: entry.Track}, nil

	case CmdQueueMove:
		return Result{}, sess.MoveInQueue(ctx, cmd.From, cmd.To)

	case CmdQueueShuffle:
		sess.ShuffleQueue(ctx)
		return Result{}, nil

	case CmdQueueClear:
		sess.ClearQueue(ctx)
		return Result{}, nil

	case CmdSetLoop:
		sess.SetLoop(ctx, cmd.Loop)
		return Result{}, nil

	case cmdSuspend:
		sess.Suspend(ctx)
		return Result{}, nil

	default:
		return Result{}, errors.Newf("unknown command kind: %d", cmd.Kind)
	}
}

// resolveAdmitted resolves the query and runs the admission chain.
func (r *Registry) resolveAdmitted(ctx context.Context, h *handle, cmd *Command) (track.Track, error) {
	t, err := r.resolver.Resolve(ctx, cmd.Query)
	if err != nil {
		return track.Track{}, errors.Wrapf(playback.ErrSourceUnavailable, "resolve %q: %v", cmd.Query, err)
	}

	req := admission.Request{ChatID: h.chatID, Requester: cmd.Requester}
	result := r.admission.Execute(ctx, req, t, h.sess.CurrentTrack(), h.sess.Queue())
	if err := result.Err(); err != nil {
		return track.Track{}, err
	}
	return t, nil
}

// Dispatch routes a command to the chat's worker and waits for the
// outcome. Sessions are created on demand for play and queueAdd; stop
// without a session succeeds, anything else fails with ErrNoSession.
// ctx bounds the wait only: an accepted command runs to completion even
// if the caller gives up.
func (r *Registry) Dispatch(ctx context.Context, chatID int64, cmd Command) (Result, error) {
	var h *handle
	var err error

	switch cmd.Kind {
	case CmdPlay, CmdQueueAdd:
		h, err = r.getOrCreateHandle(chatID)
		if err != nil {
			return Result{}, err
		}
	default:
		var ok bool
		h, ok = r.lookup(chatID)
		if !ok {
			if cmd.Kind == CmdStop {
				return Result{}, nil
			}
			return Result{}, errors.Wrapf(ErrNoSession, "chat %d", chatID)
		}
	}

	// Stop aborts the in-flight command so a stuck resolve or attach
	// cannot delay teardown.
	if cmd.Kind == CmdStop {
		h.cancelInFlight()
	}

	zlog.Debug().Msgf("registry: dispatch: chat=%d command=%s", chatID, cmd.Kind)

	req := request{cmd: &cmd, reply: make(chan response, 1)}
	select {
	case h.mailbox <- req:
	case <-h.done:
		return r.sessionGone(chatID, cmd.Kind)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.result, resp.err
	case <-h.done:
		return r.sessionGone(chatID, cmd.Kind)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// sessionGone resolves a command that raced with the session's removal.
func (r *Registry) sessionGone(chatID int64, kind CommandKind) (Result, error) {
	if kind == CmdStop {
		return Result{}, nil
	}
	return Result{}, errors.Wrapf(ErrNoSession, "chat %d", chatID)
}

// NotifyTrackEnded forwards an end-of-stream signal from the transport
// to the chat's worker. Unknown chats and full mailboxes drop the
// signal; the progress task detects completion on its own.
func (r *Registry) NotifyTrackEnded(chatID int64, trackID string) {
	h, ok := r.lookup(chatID)
	if !ok {
		return
	}
	req := request{fn: func(ctx context.Context) {
		h.sess.TrackEnded(ctx, trackID)
	}}
	select {
	case h.mailbox <- req:
	case <-h.done:
	default:
		zlog.Warn().Msgf("registry: mailbox full, dropping end-of-stream: chat=%d track=%s", chatID, trackID)
	}
}

// ResumeFromSnapshot restores a chat's session on the startup path.
func (r *Registry) ResumeFromSnapshot(ctx context.Context, chatID int64, snap snapshot.Snapshot) error {
	h, err := r.getOrCreateHandle(chatID)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	req := request{fn: func(fnCtx context.Context) {
		errCh <- h.sess.RestoreFromSnapshot(fnCtx, snap)
	}}

	select {
	case h.mailbox <- req:
	case <-h.done:
		return errors.Wrapf(ErrNoSession, "chat %d", chatID)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the chat's session status.
func (r *Registry) Status(chatID int64) (playback.Status, error) {
	h, ok := r.lookup(chatID)
	if !ok {
		return playback.Status{}, errors.Wrapf(ErrNoSession, "chat %d", chatID)
	}
	return h.sess.Status(), nil
}

// StatusAll returns the status of every active session, ordered by chat.
func (r *Registry) StatusAll() []playback.Status {
	r.mu.RLock()
	handles := make([]*handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]playback.Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.sess.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// QueuePage reads one page of the chat's queue through its worker, so
// the read is ordered against concurrent edits.
func (r *Registry) QueuePage(ctx context.Context, chatID int64, page, perPage int) ([]track.QueueEntry, int, error) {
	h, ok := r.lookup(chatID)
	if !ok {
		return nil, 0, errors.Wrapf(ErrNoSession, "chat %d", chatID)
	}

	type pageResult struct {
		entries []track.QueueEntry
		pages   int
	}
	ch := make(chan pageResult, 1)
	req := request{fn: func(context.Context) {
		entries, pages := h.sess.Queue().Page(page, perPage)
		ch <- pageResult{entries: entries, pages: pages}
	}}

	select {
	case h.mailbox <- req:
	case <-h.done:
		return nil, 0, errors.Wrapf(ErrNoSession, "chat %d", chatID)
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	select {
	case res := <-ch:
		return res.entries, res.pages, nil
	case <-h.done:
		return nil, 0, errors.Wrapf(ErrNoSession, "chat %d", chatID)
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// Shutdown suspends every session: final snapshots are written and
// transports released, but nothing is deleted, so the next start can
// resume. The registry accepts no work afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]*handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		req := request{cmd: &Command{Kind: cmdSuspend}, reply: make(chan response, 1)}
		select {
		case h.mailbox <- req:
		case <-h.done:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-req.reply:
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	waitCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		zlog.Info().Msgf("registry: shut down: sessions=%d", len(handles))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
