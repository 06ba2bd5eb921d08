package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/callbox/internal/app/notification"
	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/domain/track"
	"github.com/osa030/callbox/internal/infra/config"
	"github.com/osa030/callbox/internal/infra/store"
)

type fakeTransport struct{}

func (fakeTransport) Attach(ctx context.Context, chatID int64, t track.Track, seek time.Duration) error {
	return nil
}
func (fakeTransport) Detach(ctx context.Context, chatID int64) error { return nil }
func (fakeTransport) Pause(ctx context.Context, chatID int64) error  { return nil }
func (fakeTransport) Resume(ctx context.Context, chatID int64) error { return nil }

// catalogResolver turns any query into a three-minute track. Queries
// starting with "missing" fail resolution.
type catalogResolver struct{}

func (catalogResolver) Resolve(ctx context.Context, query string) (track.Track, error) {
	if strings.HasPrefix(query, "missing") {
		return track.Track{}, errors.Newf("no track found for %q", query)
	}
	return track.Track{
		ID:       "id-" + query,
		Title:    query,
		Artist:   "Test Artist",
		Duration: 3 * time.Minute,
		URL:      "https://tracks.test/" + query,
		Source:   "test",
	}, nil
}

func newTestAPI(t *testing.T, adminToken string) (*httptest.Server, *registry.Registry) {
	t.Helper()

	st, err := store.Open("memory", nil)
	require.NoError(t, err)
	hub := notification.NewHub()
	reg := registry.New(playback.Config{
		ProgressInterval: time.Hour,
		AttachTimeout:    time.Second,
		HistorySize:      5,
	}, fakeTransport{}, st, hub, catalogResolver{}, nil)

	cfg := &config.Config{}
	cfg.Server.AdminToken = adminToken
	cfg.Playback.QueuePageSize = 3
	cfg.Store.Backend = "memory"

	srv := httptest.NewServer(New(reg, hub, cfg).Routes())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, reg.Shutdown(ctx))
		hub.Close()
	})
	return srv, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func decodeResp(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	decodeResp(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "memory", health.StoreBackend)
	assert.Equal(t, 0, health.Sessions)

	// Root serves the same payload.
	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestAPI(t, "secret-token")

	// Health stays open.
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// API requires the token.
	resp, err = http.Get(srv.URL + "/v1/chats")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var fail errorResponse
	decodeResp(t, resp, &fail)
	assert.Equal(t, "unauthenticated", fail.Code)

	// Wrong token is rejected.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/chats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bearer token passes.
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/v1/chats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Legacy header passes too.
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/v1/chats", nil)
	require.NoError(t, err)
	req.Header.Set(adminTokenHeader, "secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusUnknownChat(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	resp, err := http.Get(srv.URL + "/v1/chats/42")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var fail errorResponse
	decodeResp(t, resp, &fail)
	assert.Equal(t, "no_session", fail.Code)
}

func TestStatusBadChatID(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	resp, err := http.Get(srv.URL + "/v1/chats/not-a-number")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fail errorResponse
	decodeResp(t, resp, &fail)
	assert.Equal(t, "bad_chat_id", fail.Code)
}

func TestStatusAfterPlay(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	resp := postJSON(t, srv.URL+"/v1/chats/7/play", playRequest{Query: "some song"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cmd commandResponse
	decodeResp(t, resp, &cmd)
	assert.True(t, cmd.Success)
	assert.False(t, cmd.Enqueued)
	require.NotNil(t, cmd.Track)
	assert.Equal(t, "some song", cmd.Track.Title)

	resp, err := http.Get(srv.URL + "/v1/chats/7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st statusDTO
	decodeResp(t, resp, &st)
	assert.Equal(t, int64(7), st.ChatID)
	assert.Equal(t, "playing", st.State)
	require.NotNil(t, st.Track)
	assert.Equal(t, "some song", st.Track.Title)
	assert.Equal(t, "off", st.Loop)

	// The listing now carries one chat.
	resp, err = http.Get(srv.URL + "/v1/chats")
	require.NoError(t, err)
	var list statusListResponse
	decodeResp(t, resp, &list)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, int64(7), list.Chats[0].ChatID)
}

func TestResolveFailureMapsToBadGateway(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	resp := postJSON(t, srv.URL+"/v1/chats/7/play", playRequest{Query: "missing track"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var fail errorResponse
	decodeResp(t, resp, &fail)
	assert.Equal(t, string(playback.ErrorKindSourceUnavailable), fail.Code)
	assert.False(t, fail.Success)
}

func TestUnknownRouteIs404(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	resp, err := http.Get(srv.URL + "/v1/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCountsSessions(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	for i := 1; i <= 3; i++ {
		resp := postJSON(t, fmt.Sprintf("%s/v1/chats/%d/play", srv.URL, i), playRequest{Query: "song"})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health healthResponse
	decodeResp(t, resp, &health)
	assert.Equal(t, 3, health.Sessions)
}
