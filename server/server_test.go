package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassdesk/relay/framestore"
	"github.com/glassdesk/relay/media"
	"github.com/glassdesk/relay/registry"
	"github.com/glassdesk/relay/screenshots"
	"github.com/glassdesk/relay/storage/local"
	"github.com/glassdesk/relay/stream"
)

type testRelay struct {
	srv      *httptest.Server
	clientID string
}

func setupServer(t *testing.T, opts ...ServerOption) *testRelay {
	t.Helper()

	store := framestore.NewMemoryStore()
	clients := registry.NewMemoryRegistry()
	chunks, err := local.NewChunkStore(t.TempDir())
	require.NoError(t, err)
	shots := screenshots.NewMemoryStore()

	sessions := stream.NewSessionRegistry(store, clients)
	ingestor := stream.NewIngestor(store, chunks, clients)
	resolver := stream.NewResolver(store, clients, shots, chunks)
	notifier := stream.NewNotifier(chunks, sessions, stream.WithPollInterval(5*time.Millisecond))

	allOpts := append([]ServerOption{WithScreenshotStorage(shots, chunks)}, opts...)
	s := NewServer(sessions, ingestor, resolver, notifier, clients, allOpts...)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv, "/api/clients/register", map[string]any{
		"client_id": "desk-042",
		"hostname":  "desk-042.corp.local",
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return &testRelay{srv: srv, clientID: "desk-042"}
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func decodeResponse(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestStreamLifecycle(t *testing.T) {
	fx := setupServer(t)

	// Unknown client is rejected outright.
	resp := postJSON(t, fx.srv, "/api/stream/start/never-registered", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// No session yet: the producer poll says don't stream.
	var reqStatus map[string]any
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/request/"+fx.clientID, &reqStatus))
	assert.Equal(t, false, reqStatus["streaming"])

	// Viewer starts a high-quality session.
	resp = postJSON(t, fx.srv, "/api/stream/start/"+fx.clientID, map[string]any{"quality": "high"})
	var started map[string]any
	decodeResponse(t, resp, &started)
	assert.Equal(t, true, started["streaming"])
	assert.Equal(t, "high", started["quality"])

	// Producer poll now reflects the session.
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/request/"+fx.clientID, &reqStatus))
	assert.Equal(t, true, reqStatus["streaming"])
	assert.Equal(t, "high", reqStatus["quality"])

	// Producer pushes a frame.
	payload := base64.StdEncoding.EncodeToString([]byte("frame-one"))
	resp = postJSON(t, fx.srv, "/api/stream/chunk/"+fx.clientID, map[string]any{
		"video_chunk": payload,
		"sequence":    1,
		"quality":     "high",
	})
	var ingested map[string]any
	decodeResponse(t, resp, &ingested)
	assert.Equal(t, "received", ingested["status"])

	// Viewer fetches the latest frame.
	var latest map[string]any
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/latest/"+fx.clientID, &latest))
	assert.Equal(t, payload, latest["data"])
	assert.Equal(t, float64(1), latest["sequence"])

	// Stop; the producer poll goes quiet again.
	resp = postJSON(t, fx.srv, "/api/stream/stop/"+fx.clientID, nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/request/"+fx.clientID, &reqStatus))
	assert.Equal(t, false, reqStatus["streaming"])
}

func TestChunkFieldSpellings(t *testing.T) {
	fx := setupServer(t)

	payload := base64.StdEncoding.EncodeToString([]byte("frame"))
	for i, field := range []string{"chunk", "video_chunk", "screenshot"} {
		resp := postJSON(t, fx.srv, "/api/stream/chunk/"+fx.clientID, map[string]any{
			field:      payload,
			"sequence": i + 1,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode, "field %s", field)
		_ = resp.Body.Close()
	}
}

func TestChunkEmptyPayload(t *testing.T) {
	fx := setupServer(t)

	resp := postJSON(t, fx.srv, "/api/stream/chunk/"+fx.clientID, map[string]any{
		"sequence": 1,
	})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The rejected frame must not become visible.
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, fx.srv, "/api/stream/latest/"+fx.clientID, nil))
}

func TestLatestNoData(t *testing.T) {
	fx := setupServer(t)

	assert.Equal(t, http.StatusNotFound,
		getJSON(t, fx.srv, "/api/stream/latest/"+fx.clientID, nil))
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, fx.srv, "/api/stream/latest/never-registered", nil))
}

func TestStreamStatus(t *testing.T) {
	fx := setupServer(t)

	var status map[string]any
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/status/"+fx.clientID, &status))
	assert.Equal(t, true, status["online"])
	assert.Equal(t, false, status["streaming"])

	resp := postJSON(t, fx.srv, "/api/stream/start/"+fx.clientID, nil)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/status/"+fx.clientID, &status))
	assert.Equal(t, true, status["streaming"])
	assert.Equal(t, "medium", status["quality"])
}

func TestClientHeartbeatAndList(t *testing.T) {
	fx := setupServer(t)

	resp := postJSON(t, fx.srv, "/api/clients/heartbeat", map[string]any{"client_id": fx.clientID})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, fx.srv, "/api/clients/heartbeat", map[string]any{"client_id": "ghost"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var list map[string][]registry.Client
	require.Equal(t, http.StatusOK, getJSON(t, fx.srv, "/api/clients", &list))
	require.Len(t, list["clients"], 1)
	assert.Equal(t, fx.clientID, list["clients"][0].ClientID)
}

// readSSEEvent scans the SSE body for the next data: line and decodes it.
func readSSEEvent(t *testing.T, scanner *bufio.Scanner) stream.Event {
	t.Helper()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev stream.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		return ev
	}
	t.Fatalf("SSE stream ended early: %v", scanner.Err())
	return stream.Event{}
}

func TestSSEPushChannel(t *testing.T) {
	fx := setupServer(t)

	resp := postJSON(t, fx.srv, "/api/stream/start/"+fx.clientID, nil)
	_ = resp.Body.Close()

	sse, err := http.Get(fx.srv.URL + "/api/stream/events/" + fx.clientID)
	require.NoError(t, err)
	defer func() { _ = sse.Body.Close() }()
	require.Equal(t, "text/event-stream", sse.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(sse.Body)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	ev := readSSEEvent(t, scanner)
	require.Equal(t, stream.EventConnected, ev.Type)
	assert.Equal(t, fx.clientID, ev.ClientID)

	payload := base64.StdEncoding.EncodeToString([]byte("frame-one"))
	resp = postJSON(t, fx.srv, "/api/stream/chunk/"+fx.clientID, map[string]any{
		"video_chunk": payload,
		"sequence":    1,
	})
	_ = resp.Body.Close()

	ev = readSSEEvent(t, scanner)
	require.Equal(t, stream.EventStreamData, ev.Type)
	assert.Equal(t, int64(1), ev.Sequence)
	assert.Equal(t, payload, ev.Data)

	resp = postJSON(t, fx.srv, "/api/stream/stop/"+fx.clientID, nil)
	_ = resp.Body.Close()

	for {
		ev = readSSEEvent(t, scanner)
		if ev.Type == stream.EventStreamEnd {
			break
		}
		require.Equal(t, stream.EventStreamData, ev.Type)
	}
}

func TestWebsocketPushChannel(t *testing.T) {
	fx := setupServer(t)

	resp := postJSON(t, fx.srv, "/api/stream/start/"+fx.clientID, nil)
	_ = resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(fx.srv.URL, "http") + "/api/stream/ws/" + fx.clientID
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if wsResp != nil {
		_ = wsResp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	var ev stream.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, stream.EventConnected, ev.Type)

	resp = postJSON(t, fx.srv, "/api/stream/stop/"+fx.clientID, nil)
	_ = resp.Body.Close()

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, stream.EventStreamEnd, ev.Type)
}

func TestViewerLimit(t *testing.T) {
	fx := setupServer(t, WithMaxViewers(1))

	resp := postJSON(t, fx.srv, "/api/stream/start/"+fx.clientID, nil)
	_ = resp.Body.Close()

	sse, err := http.Get(fx.srv.URL + "/api/stream/events/" + fx.clientID)
	require.NoError(t, err)
	defer func() { _ = sse.Body.Close() }()

	// Hold the first channel open past its connected event, then try again.
	scanner := bufio.NewScanner(sse.Body)
	require.Equal(t, stream.EventConnected, readSSEEvent(t, scanner).Type)

	second, err := http.Get(fx.srv.URL + "/api/stream/events/" + fx.clientID)
	require.NoError(t, err)
	defer func() { _ = second.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, second.StatusCode)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), A: 255})
		}
	}
	data, err := media.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func TestScreenshotUploadFeedsFallback(t *testing.T) {
	fx := setupServer(t)

	png := testPNG(t)
	resp := postJSON(t, fx.srv, "/api/screenshots", map[string]any{
		"client_id": fx.clientID,
		"image":     base64.StdEncoding.EncodeToString(png),
		"filename":  "capture.png",
	})
	var shot screenshots.Screenshot
	decodeResponse(t, resp, &shot)
	assert.Equal(t, "8x6", shot.Resolution)
	assert.Equal(t, fmt.Sprintf("screenshots/%s/capture.png", fx.clientID), shot.FilePath)

	// No cached stream data exists, so the cascade lands on the stored file.
	var latest map[string]any
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/stream/latest/"+fx.clientID, &latest))
	assert.Equal(t, "screenshot_fallback", latest["source"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), latest["data"])
}

func TestScreenshotList(t *testing.T) {
	fx := setupServer(t)

	png := testPNG(t)
	for _, name := range []string{"first.png", "second.png"} {
		resp := postJSON(t, fx.srv, "/api/screenshots", map[string]any{
			"client_id": fx.clientID,
			"image":     base64.StdEncoding.EncodeToString(png),
			"filename":  name,
		})
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var list map[string][]screenshots.Screenshot
	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/screenshots/"+fx.clientID, &list))
	require.Len(t, list["screenshots"], 2)

	require.Equal(t, http.StatusOK,
		getJSON(t, fx.srv, "/api/screenshots/"+fx.clientID+"?limit=1", &list))
	assert.Len(t, list["screenshots"], 1)

	assert.Equal(t, http.StatusBadRequest,
		getJSON(t, fx.srv, "/api/screenshots/"+fx.clientID+"?limit=bogus", nil))
	assert.Equal(t, http.StatusNotFound,
		getJSON(t, fx.srv, "/api/screenshots/never-registered", nil))
}

func TestScreenshotUploadValidation(t *testing.T) {
	fx := setupServer(t)

	resp := postJSON(t, fx.srv, "/api/screenshots", map[string]any{
		"client_id": fx.clientID,
	})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, fx.srv, "/api/screenshots", map[string]any{
		"client_id": "ghost",
		"image":     base64.StdEncoding.EncodeToString([]byte("x")),
	})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	fx := setupServer(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, fx.srv, "/api/health", &health))
	assert.Equal(t, "healthy", health["status"])
}
