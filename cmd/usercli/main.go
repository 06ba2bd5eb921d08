// Package main provides the participant CLI entry point for testing.
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
	app    = kingpin.New("callbox-usercli", "callbox participant client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token if the server requires one").Envar("CALLBOX_TOKEN").String()

	// request command
	requestCmd   = app.Command("request", "Request a track: plays now or joins the queue")
	requestChat  = requestCmd.Arg("chat", "Chat ID").Required().Int64()
	requestQuery = requestCmd.Arg("query", "Track URL, ID, or search text").Required().String()
	requestName  = requestCmd.Flag("name", "Your display name").Default("guest").String()

	// status command
	statusCmd  = app.Command("status", "Show what is playing")
	statusChat = statusCmd.Arg("chat", "Chat ID").Required().Int64()

	// watch command
	watchCmd  = app.Command("watch", "Follow playback events")
	watchChat = watchCmd.Arg("chat", "Chat ID").Required().Int64()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	base := strings.TrimRight(*server, "/")
	ctx := context.Background()

	// Execute command
	switch command {
	case requestCmd.FullCommand():
		request(ctx, base, *requestChat, *requestQuery, *requestName)
	case statusCmd.FullCommand():
		status(ctx, base, *statusChat)
	case watchCmd.FullCommand():
		watch(base, *watchChat)
	}
}

type trackView struct {
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	DurationSec float64 `json:"duration_sec"`
	URL         string  `json:"url"`
}

func (t trackView) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

type commandView struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message"`
	Track    *trackView `json:"track"`
	Enqueued bool       `json:"enqueued"`
	Position int        `json:"position"`
}

type statusView struct {
	State       string     `json:"state"`
	Track       *trackView `json:"track"`
	PositionSec float64    `json:"position_sec"`
	QueueLen    int        `json:"queue_len"`
}

type eventView struct {
	Type        string     `json:"type"`
	ChatID      int64      `json:"chat_id"`
	Track       *trackView `json:"track"`
	PositionSec float64    `json:"position_sec"`
	DurationSec float64    `json:"duration_sec"`
	Detail      string     `json:"detail"`
}

type frameView struct {
	Type  string       `json:"type"`
	Chats []statusView `json:"chats"`
	Event *eventView   `json:"event"`
}

func call(ctx context.Context, method, url string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := http.DefaultClient.Do(req)
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

func request(ctx context.Context, base string, chatID int64, query, name string) {
	body := map[string]any{"query": query, "requester": name}

	var res commandView
	url := fmt.Sprintf("%s/v1/chats/%d/play", base, chatID)
	if err := call(ctx, http.MethodPost, url, body, &res); err != nil {
		fmt.Printf("Rejected: %v\n", err)
		os.Exit(1)
	}

	if res.Enqueued {
		fmt.Printf("Success: queued at position %d: %s\n", res.Position, res.Track)
	} else {
		fmt.Printf("Success: now playing %s\n", res.Track)
	}
}

func status(ctx context.Context, base string, chatID int64) {
	var s statusView
	url := fmt.Sprintf("%s/v1/chats/%d", base, chatID)
	if err := call(ctx, http.MethodGet, url, nil, &s); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if s.Track == nil {
		fmt.Printf("Nothing playing (state: %s)\n", s.State)
		return
	}
	fmt.Printf("%s: %s [%s/%s], %d queued\n", s.State, s.Track,
		clock(s.PositionSec), clock(s.Track.DurationSec), s.QueueLen)
}

func watch(base string, chatID int64) {
	url := fmt.Sprintf("%s/v1/events?chat=%d", strings.Replace(base, "http", "ws", 1), chatID)

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Watching. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nBye")
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
	ts := time.Now().Format("15:04:05")

	if f.Type == "initial_state" {
		for _, s := range f.Chats {
			if s.Track != nil {
				fmt.Printf("[%s] now: %s (%s)\n", ts, s.Track, s.State)
			}
		}
		return
	}
	if f.Event == nil {
		return
	}

	e := f.Event
	switch e.Type {
	case "track_started":
		fmt.Printf("[%s] ▶️  %s\n", ts, e.Track)
	case "track_ended":
		fmt.Printf("[%s] ⏹  %s\n", ts, e.Track)
	case "progress":
		fmt.Printf("[%s] %s/%s %s\n", ts, clock(e.PositionSec), clock(e.DurationSec), e.Track)
	case "queue_empty":
		fmt.Printf("[%s] queue empty\n", ts)
	case "session_error":
		fmt.Printf("[%s] error: %s\n", ts, e.Detail)
	}
}

func clock(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
