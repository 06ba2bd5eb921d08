// Package main provides the admin CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("callbox-admincli", "callbox playback admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set CALLBOX_ADMIN_TOKEN env)").Envar("CALLBOX_ADMIN_TOKEN").String()

	// status command
	statusCmd  = app.Command("status", "Show session status")
	statusChat = statusCmd.Arg("chat", "Chat ID (omit for all chats)").Int64()

	// play command
	playCmd   = app.Command("play", "Play a track, or queue it when one is already playing")
	playChat  = playCmd.Arg("chat", "Chat ID").Required().Int64()
	playQuery = playCmd.Arg("query", "Track URL, ID, or search text").Required().String()
	playSeek  = playCmd.Flag("seek", "Initial position in seconds").Float64()
	playAs    = playCmd.Flag("as", "Requester display name").String()

	// pause command
	pauseCmd  = app.Command("pause", "Pause playback")
	pauseChat = pauseCmd.Arg("chat", "Chat ID").Required().Int64()

	// resume command
	resumeCmd  = app.Command("resume", "Resume paused playback")
	resumeChat = resumeCmd.Arg("chat", "Chat ID").Required().Int64()

	// skip command
	skipCmd  = app.Command("skip", "Skip the current track")
	skipChat = skipCmd.Arg("chat", "Chat ID").Required().Int64()
	skipTo   = skipCmd.Flag("to", "Jump to this queue index instead of the next track").Default("-1").Int()

	// seek command
	seekCmd  = app.Command("seek", "Move the position within the current track")
	seekChat = seekCmd.Arg("chat", "Chat ID").Required().Int64()
	seekPos  = seekCmd.Arg("position", "Position in seconds").Required().Float64()

	// loop command
	loopCmd  = app.Command("loop", "Set the loop mode")
	loopChat = loopCmd.Arg("chat", "Chat ID").Required().Int64()
	loopMode = loopCmd.Arg("mode", "Loop mode: off or track").Required().String()

	// stop command
	stopCmd  = app.Command("stop", "Stop playback and discard the session")
	stopChat = stopCmd.Arg("chat", "Chat ID").Required().Int64()

	// queue commands
	queueCmd = app.Command("queue", "Queue operations")

	queueListCmd  = queueCmd.Command("list", "List queued tracks").Default()
	queueListChat = queueListCmd.Arg("chat", "Chat ID").Required().Int64()
	queueListPage = queueListCmd.Flag("page", "Page number").Default("1").Int()

	queueAddCmd   = queueCmd.Command("add", "Add a track to the queue")
	queueAddChat  = queueAddCmd.Arg("chat", "Chat ID").Required().Int64()
	queueAddQuery = queueAddCmd.Arg("query", "Track URL, ID, or search text").Required().String()
	queueAddAs    = queueAddCmd.Flag("as", "Requester display name").String()

	queueRemoveCmd   = queueCmd.Command("remove", "Remove a queued track")
	queueRemoveChat  = queueRemoveCmd.Arg("chat", "Chat ID").Required().Int64()
	queueRemoveIndex = queueRemoveCmd.Arg("index", "Queue index").Required().Int()

	queueMoveCmd  = queueCmd.Command("move", "Move a queued track")
	queueMoveChat = queueMoveCmd.Arg("chat", "Chat ID").Required().Int64()
	queueMoveFrom = queueMoveCmd.Arg("from", "Current index").Required().Int()
	queueMoveTo   = queueMoveCmd.Arg("to", "Target index").Required().Int()

	queueShuffleCmd  = queueCmd.Command("shuffle", "Shuffle the queue")
	queueShuffleChat = queueShuffleCmd.Arg("chat", "Chat ID").Required().Int64()

	queueClearCmd  = queueCmd.Command("clear", "Clear the queue")
	queueClearChat = queueClearCmd.Arg("chat", "Chat ID").Required().Int64()

	// watch command
	watchCmd  = app.Command("watch", "Stream live playback events")
	watchChat = watchCmd.Flag("chat", "Only events for this chat").Int64()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := &client{base: strings.TrimRight(*server, "/"), token: *token, http: http.DefaultClient}
	ctx := context.Background()

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		status(ctx, c, *statusChat)
	case playCmd.FullCommand():
		play(ctx, c, *playChat, *playQuery, *playSeek, *playAs)
	case pauseCmd.FullCommand():
		bare(ctx, c, *pauseChat, "pause")
	case resumeCmd.FullCommand():
		bare(ctx, c, *resumeChat, "resume")
	case skipCmd.FullCommand():
		skip(ctx, c, *skipChat, *skipTo)
	case seekCmd.FullCommand():
		seek(ctx, c, *seekChat, *seekPos)
	case loopCmd.FullCommand():
		loop(ctx, c, *loopChat, *loopMode)
	case stopCmd.FullCommand():
		bare(ctx, c, *stopChat, "stop")
	case queueListCmd.FullCommand():
		queueList(ctx, c, *queueListChat, *queueListPage)
	case queueAddCmd.FullCommand():
		queueAdd(ctx, c, *queueAddChat, *queueAddQuery, *queueAddAs)
	case queueRemoveCmd.FullCommand():
		queueRemove(ctx, c, *queueRemoveChat, *queueRemoveIndex)
	case queueMoveCmd.FullCommand():
		queueMove(ctx, c, *queueMoveChat, *queueMoveFrom, *queueMoveTo)
	case queueShuffleCmd.FullCommand():
		bareQueue(ctx, c, *queueShuffleChat, "shuffle")
	case queueClearCmd.FullCommand():
		bareQueue(ctx, c, *queueClearChat, "clear")
	case watchCmd.FullCommand():
		watch(c, *watchChat)
	}
}

// client is a thin JSON HTTP client for the server API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var fail struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &fail) == nil && fail.Code != "" {
			return fmt.Errorf("%s [%s]", fail.Message, fail.Code)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Wire views, mirroring the server's JSON responses.

type trackView struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	ArtworkURL  string  `json:"artwork_url"`
	DurationSec float64 `json:"duration_sec"`
	URL         string  `json:"url"`
	Source      string  `json:"source"`
	Live        bool    `json:"live"`
}

func (t trackView) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

type statusView struct {
	ChatID      int64       `json:"chat_id"`
	State       string      `json:"state"`
	Track       *trackView  `json:"track"`
	PositionSec float64     `json:"position_sec"`
	Loop        string      `json:"loop"`
	QueueLen    int         `json:"queue_len"`
	Generation  int64       `json:"generation"`
	History     []trackView `json:"history"`
}

type statusListView struct {
	Count int          `json:"count"`
	Chats []statusView `json:"chats"`
}

type commandView struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message"`
	Track    *trackView `json:"track"`
	Enqueued bool       `json:"enqueued"`
	Position int        `json:"position"`
}

type queueEntryView struct {
	Index         int       `json:"index"`
	Track         trackView `json:"track"`
	Requester     string    `json:"requester"`
	RequesterType string    `json:"requester_type"`
}

type queuePageView struct {
	ChatID     int64            `json:"chat_id"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	Entries    []queueEntryView `json:"entries"`
}

type eventView struct {
	SequenceNo  uint64     `json:"sequence_no"`
	Type        string     `json:"type"`
	ChatID      int64      `json:"chat_id"`
	Track       *trackView `json:"track"`
	PositionSec float64    `json:"position_sec"`
	DurationSec float64    `json:"duration_sec"`
	State       string     `json:"state"`
	Kind        string     `json:"kind"`
	Detail      string     `json:"detail"`
}

type frameView struct {
	Type  string       `json:"type"`
	Chats []statusView `json:"chats"`
	Event *eventView   `json:"event"`
}

func status(ctx context.Context, c *client, chatID int64) {
	if chatID == 0 {
		var list statusListView
		if err := c.do(ctx, http.MethodGet, "/v1/chats", nil, &list); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if list.Count == 0 {
			fmt.Println("No active sessions")
			return
		}
		fmt.Printf("Active sessions (%d):\n", list.Count)
		for _, s := range list.Chats {
			line := fmt.Sprintf("  chat %d: %s", s.ChatID, formatState(s.State))
			if s.Track != nil {
				line += fmt.Sprintf(" | %s [%s/%s]", s.Track,
					formatClock(s.PositionSec), formatClock(s.Track.DurationSec))
			}
			line += fmt.Sprintf(" | queue: %d", s.QueueLen)
			fmt.Println(line)
		}
		return
	}

	var s statusView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/chats/%d", chatID), nil, &s); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printStatus(s)
}

func printStatus(s statusView) {
	fmt.Printf("\n=== CHAT %d ===\n", s.ChatID)
	fmt.Printf("State: %s\n", formatState(s.State))
	fmt.Printf("Loop: %s\n", s.Loop)
	fmt.Printf("Queue Size: %d\n", s.QueueLen)
	fmt.Printf("Generation: %d\n", s.Generation)

	if s.Track != nil {
		fmt.Println("\nCurrently Playing:")
		fmt.Printf("  Track ID: %s\n", s.Track.ID)
		fmt.Printf("  Name: %s\n", s.Track.Title)
		fmt.Printf("  Artist: %s\n", s.Track.Artist)
		if s.Track.Album != "" {
			fmt.Printf("  Album: %s\n", s.Track.Album)
		}
		fmt.Printf("  URL: %s\n", s.Track.URL)
		fmt.Printf("  Source: %s\n", s.Track.Source)
		if s.Track.Live {
			fmt.Printf("  Position: %s (live)\n", formatClock(s.PositionSec))
		} else {
			fmt.Printf("  Position: %s / %s\n", formatClock(s.PositionSec), formatClock(s.Track.DurationSec))
		}
	} else {
		fmt.Println("\nNo track currently playing")
	}

	if len(s.History) > 0 {
		fmt.Println("\nRecently Played:")
		for _, t := range s.History {
			fmt.Printf("  %s\n", t)
		}
	}
	fmt.Println()
}

func play(ctx context.Context, c *client, chatID int64, query string, seekSec float64, requester string) {
	body := map[string]any{"query": query}
	if seekSec > 0 {
		body["seek_sec"] = seekSec
	}
	if requester != "" {
		body["requester"] = requester
	}

	var res commandView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/play", chatID), body, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if res.Enqueued {
		fmt.Printf("Queued at position %d: %s\n", res.Position, res.Track)
	} else {
		fmt.Printf("Now playing: %s\n", res.Track)
	}
}

func bare(ctx context.Context, c *client, chatID int64, op string) {
	var res commandView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/%s", chatID, op), nil, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(res.Message)
}

func skip(ctx context.Context, c *client, chatID int64, to int) {
	var body any
	if to >= 0 {
		body = map[string]any{"to": to}
	}

	var res commandView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/skip", chatID), body, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if res.Track != nil {
		fmt.Printf("Skipped to: %s\n", res.Track)
	} else {
		fmt.Println(res.Message)
	}
}

func seek(ctx context.Context, c *client, chatID int64, pos float64) {
	var res commandView
	body := map[string]any{"position_sec": pos}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/seek", chatID), body, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Position set to %s\n", formatClock(pos))
}

func loop(ctx context.Context, c *client, chatID int64, mode string) {
	var res commandView
	body := map[string]any{"mode": mode}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/loop", chatID), body, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(res.Message)
}

func queueList(ctx context.Context, c *client, chatID int64, page int) {
	var pg queuePageView
	path := fmt.Sprintf("/v1/chats/%d/queue?page=%d", chatID, page)
	if err := c.do(ctx, http.MethodGet, path, nil, &pg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(pg.Entries) == 0 {
		fmt.Println("Queue is empty")
		return
	}
	fmt.Printf("Queue for chat %d (page %d/%d):\n", pg.ChatID, pg.Page, pg.TotalPages)
	for _, e := range pg.Entries {
		fmt.Printf("  %3d. %s [%s] (by %s)\n",
			e.Index, e.Track, formatClock(e.Track.DurationSec), e.Requester)
	}
}

func queueAdd(ctx context.Context, c *client, chatID int64, query, requester string) {
	body := map[string]any{"query": query}
	if requester != "" {
		body["requester"] = requester
	}

	var res commandView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/queue", chatID), body, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Queued at position %d: %s\n", res.Position, res.Track)
}

func queueRemove(ctx context.Context, c *client, chatID int64, index int) {
	var res commandView
	path := fmt.Sprintf("/v1/chats/%d/queue/%d", chatID, index)
	if err := c.do(ctx, http.MethodDelete, path, nil, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed: %s\n", res.Track)
}

func queueMove(ctx context.Context, c *client, chatID int64, from, to int) {
	var res commandView
	body := map[string]any{"from": from, "to": to}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/queue/move", chatID), body, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Moved %d -> %d\n", from, to)
}

func bareQueue(ctx context.Context, c *client, chatID int64, op string) {
	var res commandView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/chats/%d/queue/%s", chatID, op), nil, &res); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(res.Message)
}

func watch(c *client, chatID int64) {
	url := strings.Replace(c.base, "http", "ws", 1) + "/v1/events"
	if chatID != 0 {
		url += fmt.Sprintf("?chat=%d", chatID)
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			fmt.Printf("Error: connect failed: %s\n", resp.Status)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Watching playback events. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nDisconnecting...")
		os.Exit(0)
	}()

	for {
		var frame frameView
		if err := conn.ReadJSON(&frame); err != nil {
			fmt.Printf("Stream error: %v\n", err)
			return
		}
		printFrame(frame)
	}
}

func printFrame(f frameView) {
	switch f.Type {
	case "initial_state":
		fmt.Println("\n=== INITIAL STATE ===")
		if len(f.Chats) == 0 {
			fmt.Println("No active sessions")
			return
		}
		for _, s := range f.Chats {
			line := fmt.Sprintf("chat %d: %s", s.ChatID, formatState(s.State))
			if s.Track != nil {
				line += fmt.Sprintf(" | %s [%s]", s.Track, formatClock(s.PositionSec))
			}
			fmt.Println(line)
		}

	case "event":
		if f.Event == nil {
			return
		}
		e := f.Event
		ts := time.Now().Format("15:04:05")
		switch e.Type {
		case "progress":
			fmt.Printf("[%s] chat %d: %s %s/%s\n", ts, e.ChatID, e.Track,
				formatClock(e.PositionSec), formatClock(e.DurationSec))
		case "track_started":
			fmt.Printf("[%s] chat %d: started %s\n", ts, e.ChatID, e.Track)
		case "track_ended":
			fmt.Printf("[%s] chat %d: ended %s\n", ts, e.ChatID, e.Track)
		case "queue_empty":
			fmt.Printf("[%s] chat %d: queue empty, session idle\n", ts, e.ChatID)
		case "resumed":
			fmt.Printf("[%s] chat %d: resumed %s at %s\n", ts, e.ChatID, e.Track, formatClock(e.PositionSec))
		case "session_error":
			fmt.Printf("[%s] chat %d: error [%s] %s\n", ts, e.ChatID, e.Kind, e.Detail)
		default:
			fmt.Printf("[%s] chat %d: %s (seq %d)\n", ts, e.ChatID, e.Type, e.SequenceNo)
		}
	}
}

func formatState(state string) string {
	switch state {
	case "idle":
		return "⏹  Idle"
	case "joining":
		return "⏳ Joining"
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "stopping":
		return "🔚 Stopping"
	default:
		return "❓ " + state
	}
}

// formatClock renders seconds as m:ss (or h:mm:ss past an hour).
func formatClock(sec float64) string {
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
