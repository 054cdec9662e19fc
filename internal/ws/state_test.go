package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/config"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
	"github.com/coreman2200/funtimes-motion/internal/layout"
	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/render"
	"github.com/coreman2200/funtimes-motion/internal/sequence"
)

func newTestServer(t *testing.T) (*State, *httptest.Server) {
	t.Helper()
	page := layout.NewPage(particles.Measurements{ViewportWidth: 1000, DocumentHeight: 3000, ScrollY: 100})
	s := NewState(page, bus.New(), 60)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleFramesWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/health", s.HandleHealth)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestFramesBroadcast(t *testing.T) {
	s, srv := newTestServer(t)
	c := dial(t, srv, "/ws")

	hello := readJSON(t, c)
	assert.Contains(t, hello, "layout")
	assert.Equal(t, 60.0, hello["fps"])

	fr := render.Frame{
		Tick:      3,
		At:        time.Unix(10, 0),
		Sequences: []sequence.FrameEvent{{Sequence: "hero", Position: 4, Frame: 1, Ref: "/a/1.png"}},
		Bodies:    []particles.Transform{{ID: 2, X: 5, Y: 6, Size: 80, Opacity: 0.3}},
	}
	require.NoError(t, s.Write(fr))

	msg := readJSON(t, c)
	assert.Equal(t, 1.0, msg["frame_id"])
	body := msg["frame"].(map[string]any)
	assert.Equal(t, 3.0, body["tick"])
	seqs := body["sequences"].([]any)
	require.Len(t, seqs, 1)
	assert.Equal(t, "/a/1.png", seqs[0].(map[string]any)["ref"])
}

func TestFramesThrottle(t *testing.T) {
	s, _ := newTestServer(t)
	s.Throttle = 50 * time.Millisecond
	t0 := time.Unix(100, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Write(render.Frame{Tick: uint64(i + 1), At: t0.Add(time.Duration(i) * 10 * time.Millisecond)}))
	}
	// sent at 0 and 50ms
	assert.Equal(t, uint64(2), s.frameID)
	assert.Equal(t, uint64(10), s.lastFrame.Tick)
}

func TestControlMessages(t *testing.T) {
	s, srv := newTestServer(t)
	opened := make(chan bool, 1)
	s.Bus.Subscribe(bus.BookOpen, func(ev bus.Event) { opened <- ev.Open })

	c := dial(t, srv, "/control")
	require.NoError(t, c.WriteJSON(map[string]any{
		"clientPointer": map[string]any{"x": 10, "y": 20},
		"layout":        map[string]any{"header_height": 90, "has_header": true},
		"bookOpen":      true,
	}))
	reply := readJSON(t, c)
	assert.Equal(t, true, reply["bookOpen"])
	assert.Equal(t, map[string]any{"x": 10.0, "y": 120.0}, reply["pointer"])

	m := s.Page.Measure()
	assert.Equal(t, 90.0, m.HeaderHeight)
	assert.True(t, m.HasHeader)
	assert.Equal(t, 1000.0, m.ViewportWidth, "unmentioned fields are kept")
	assert.True(t, <-opened)

	require.NoError(t, c.WriteJSON(map[string]any{"pointerLeave": true}))
	reply = readJSON(t, c)
	assert.NotContains(t, reply, "pointer")
	assert.Nil(t, s.Page.Pointer())
}

func TestControlPersistsConfig(t *testing.T) {
	s, srv := newTestServer(t)
	cfg, err := config.Load("")
	require.NoError(t, err)
	s.Config = cfg
	s.ConfigPath = filepath.Join(t.TempDir(), "scene.yaml")

	c := dial(t, srv, "/control")
	require.NoError(t, c.WriteJSON(map[string]any{"fps": 30, "layout": map[string]any{"viewport_width": 640}}))
	reply := readJSON(t, c)
	assert.Equal(t, 30.0, reply["fps"])
	assert.Len(t, reply["sequences"], len(cfg.Sequences))

	back, err := config.Load(s.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, 30.0, back.Server.FPS)
	assert.Equal(t, 640.0, back.Layout.ViewportWidth)
}

func TestDiagForwarding(t *testing.T) {
	s, srv := newTestServer(t)
	c := dial(t, srv, "/diag")
	assert.Equal(t, "diag", readJSON(t, c)["hello"])

	s.Push(diag.Diagnostic{Severity: diag.Warn, Code: diag.AssetLoadFailed, Summary: "missing"})
	d := readJSON(t, c)
	assert.Equal(t, diag.AssetLoadFailed, d["code"])

	s.Bus.Publish(bus.Event{Topic: bus.LoadingComplete, Source: "hero", Loaded: 3, Failed: 1})
	ev := readJSON(t, c)["event"].(map[string]any)
	assert.Equal(t, string(bus.LoadingComplete), ev["topic"])
	assert.Equal(t, 3.0, ev["loaded"])
}

func TestHealth(t *testing.T) {
	s, srv := newTestServer(t)
	require.NoError(t, s.Write(render.Frame{Tick: 9, At: time.Now(), Bodies: make([]particles.Transform, 4)}))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var h map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, 9.0, h["tick"])
	assert.Equal(t, 4.0, h["bodies"])
	assert.Equal(t, 60.0, h["fps"])
	assert.Contains(t, h, "uptime_s")
}
