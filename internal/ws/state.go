package ws

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/coreman2200/funtimes-motion/internal/bus"
	"github.com/coreman2200/funtimes-motion/internal/config"
	diag "github.com/coreman2200/funtimes-motion/internal/diagnostics"
	"github.com/coreman2200/funtimes-motion/internal/layout"
	"github.com/coreman2200/funtimes-motion/internal/particles"
	"github.com/coreman2200/funtimes-motion/internal/render"
)

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// State is the preview server. It is a render.Driver (frames go out on /ws),
// a diagnostics sink (diagnostics go out on /diag) and the receiver of host
// input on /control.
type State struct {
	mu   sync.RWMutex
	Page *layout.Page
	Bus  *bus.Bus
	FPS  float64

	// Throttle drops frames that arrive sooner than this after the last one
	// sent. Zero sends every frame.
	Throttle time.Duration

	ConfigPath string
	Config     *config.Config

	frameID     uint64
	lastEmit    time.Time
	lastFrame   render.Frame
	startTime   time.Time
	clients     map[*client]bool
	diagClients map[*client]bool
	unsub       []func()
	proc        *process.Process
}

func NewState(page *layout.Page, b *bus.Bus, fps float64) *State {
	s := &State{
		Page:        page,
		Bus:         b,
		FPS:         fps,
		startTime:   time.Now(),
		clients:     map[*client]bool{},
		diagClients: map[*client]bool{},
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	for _, topic := range []bus.Topic{bus.FirstFrame, bus.LoadingComplete, bus.BookOpen} {
		s.unsub = append(s.unsub, b.Subscribe(topic, s.forwardEvent))
	}
	return s
}

// Close drops bus subscriptions and disconnects every client.
func (s *State) Close() {
	for _, u := range s.unsub {
		u()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
	}
	for c := range s.diagClients {
		c.conn.Close()
	}
}

// Write implements render.Driver.
func (s *State) Write(fr render.Frame) error {
	s.mu.Lock()
	s.lastFrame = fr
	if s.Throttle > 0 && s.lastEmit.Add(s.Throttle).After(fr.At) {
		s.mu.Unlock()
		return nil
	}
	s.lastEmit = fr.At
	s.frameID++
	id := s.frameID
	s.mu.Unlock()

	s.broadcastFrame(id, fr)
	return nil
}

// Push implements diagnostics.Sink.
func (s *State) Push(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	s.broadcast(s.diagTargets(), b)
}

func (s *State) forwardEvent(ev bus.Event) {
	b, _ := json.Marshal(map[string]any{"event": ev})
	s.broadcast(s.diagTargets(), b)
}

func (s *State) upgrade(w http.ResponseWriter, r *http.Request) (*client, bool) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, false
	}
	return &client{conn: conn}, true
}

// drain reads until the peer goes away, then unregisters c from set.
func (s *State) drain(c *client, set map[*client]bool) {
	defer func() {
		s.mu.Lock()
		delete(set, c)
		s.mu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.sendTopology(c)
	go s.drain(c, s.clients)
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.diagClients[c] = true
	s.mu.Unlock()
	b, _ := json.Marshal(map[string]any{"hello": "diag"})
	_ = c.write(b)
	go s.drain(c, s.diagClients)
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer c.conn.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Push(diag.Diagnostic{Severity: diag.Warn, Code: "CONTROL.BAD_JSON", Summary: "Unparseable control message", Detail: err.Error()})
			continue
		}
		s.applyControl(msg)
		s.sendTopology(c)
	}
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := map[string]any{
		"frame_id":     s.frameID,
		"tick":         s.lastFrame.Tick,
		"uptime_s":     time.Since(s.startTime).Seconds(),
		"fps":          s.FPS,
		"clients":      len(s.clients),
		"diag_clients": len(s.diagClients),
		"bodies":       len(s.lastFrame.Bodies),
		"sequences":    len(s.lastFrame.Sequences),
		"paused":       s.lastFrame.Paused,
	}
	proc := s.proc
	s.mu.RUnlock()

	if proc != nil {
		if pct, err := proc.CPUPercent(); err == nil {
			resp["cpu_percent"] = pct
		}
		if mi, err := proc.MemoryInfo(); err == nil {
			resp["rss_bytes"] = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["sys_mem_used_percent"] = vm.UsedPercent
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// applyControl handles one host message. Recognised keys:
//
//	pointer        {x, y} in page coordinates
//	clientPointer  {x, y} in viewport coordinates
//	pointerLeave   true
//	layout         any subset of the layout fields
//	scrollY        number
//	bookOpen       bool
//	fps            number, applied on next start
func (s *State) applyControl(msg map[string]any) {
	if v, ok := msg["pointer"].(map[string]any); ok {
		x, okx := v["x"].(float64)
		y, oky := v["y"].(float64)
		if okx && oky {
			s.Page.SetPointer(x, y)
		}
	}
	if v, ok := msg["clientPointer"].(map[string]any); ok {
		x, okx := v["x"].(float64)
		y, oky := v["y"].(float64)
		if okx && oky {
			s.Page.SetClientPointer(x, y)
		}
	}
	if v, ok := msg["pointerLeave"].(bool); ok && v {
		s.Page.ClearPointer()
	}

	changed := false
	if v, ok := msg["layout"].(map[string]any); ok {
		s.Page.Update(func(m *particles.Measurements) { applyLayout(m, v) })
		changed = true
	}
	if v, ok := msg["scrollY"].(float64); ok {
		s.Page.Update(func(m *particles.Measurements) { m.ScrollY = v })
	}
	if v, ok := msg["fps"].(float64); ok && v > 0 {
		s.mu.Lock()
		s.FPS = v
		s.mu.Unlock()
		changed = true
	}
	if v, ok := msg["bookOpen"].(bool); ok {
		s.Bus.Publish(bus.Event{Topic: bus.BookOpen, Source: "control", Open: v})
	}

	if changed {
		s.saveConfig()
	}
}

func applyLayout(m *particles.Measurements, v map[string]any) {
	num := func(key string, dst *float64) {
		if f, ok := v[key].(float64); ok {
			*dst = f
		}
	}
	flag := func(key string, dst *bool) {
		if b, ok := v[key].(bool); ok {
			*dst = b
		}
	}
	num("viewport_width", &m.ViewportWidth)
	num("document_height", &m.DocumentHeight)
	num("scroll_y", &m.ScrollY)
	num("header_height", &m.HeaderHeight)
	num("footer_top", &m.FooterTop)
	flag("has_header", &m.HasHeader)
	flag("has_footer", &m.HasFooter)
}

// saveConfig persists fps and page geometry.
func (s *State) saveConfig() {
	if s.ConfigPath == "" || s.Config == nil {
		return
	}
	s.mu.RLock()
	cfg := *s.Config
	cfg.Server.FPS = s.FPS
	s.mu.RUnlock()
	m := s.Page.Measure()
	cfg.Layout = config.Layout{
		ViewportWidth:  m.ViewportWidth,
		DocumentHeight: m.DocumentHeight,
		HeaderHeight:   m.HeaderHeight,
		FooterTop:      m.FooterTop,
		HasHeader:      m.HasHeader,
		HasFooter:      m.HasFooter,
	}
	if err := config.Save(s.ConfigPath, &cfg); err != nil {
		log.Warn().Err(err).Str("path", s.ConfigPath).Msg("save config")
	}
}

func (s *State) sendTopology(c *client) {
	s.mu.RLock()
	fps := s.FPS
	s.mu.RUnlock()
	top := map[string]any{
		"layout": s.Page.Measure(),
		"fps":    fps,
	}
	if p := s.Page.Pointer(); p != nil {
		top["pointer"] = map[string]float64{"x": p.X, "y": p.Y}
	}
	if ev, ok := s.Bus.Last(bus.BookOpen); ok {
		top["bookOpen"] = ev.Open
	}
	if s.Config != nil {
		top["sequences"] = s.Config.Names()
	}
	b, _ := json.Marshal(top)
	_ = c.write(b)
}

func (s *State) broadcastFrame(id uint64, fr render.Frame) {
	type frame struct {
		T       int64        `json:"t"`
		FrameID uint64       `json:"frame_id"`
		Frame   render.Frame `json:"frame"`
	}
	b, err := json.Marshal(frame{T: fr.At.UnixNano(), FrameID: id, Frame: fr})
	if err != nil {
		log.Debug().Err(err).Msg("encode frame")
		return
	}
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	for _, c := range targets {
		if err := c.write(b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (s *State) diagTargets() []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client, 0, len(s.diagClients))
	for c := range s.diagClients {
		out = append(out, c)
	}
	return out
}

func (s *State) broadcast(targets []*client, b []byte) {
	for _, c := range targets {
		_ = c.write(b)
	}
}
