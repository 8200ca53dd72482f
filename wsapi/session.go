package wsapi

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/lumacast/lumacast/config"
	"github.com/lumacast/lumacast/fanout"
	"github.com/lumacast/lumacast/input"
	"github.com/lumacast/lumacast/rtc"
)

// spawnAllowList is the fixed set of GUI programs a client may launch;
// anything else is silently rejected.
var spawnAllowList = map[string]struct{}{
	"gnome-calculator": {},
	"weston-terminal":  {},
	"gedit":            {},
	"mousepad":         {},
	"xclock":           {},
	"xeyes":            {},
	"xfce4-terminal":   {},
}

// Deps carries every process-wide collaborator a Session needs. One Deps
// is shared by every connection; only per-connection state lives on
// Session itself.
type Deps struct {
	Registry   *config.Registry
	Coalescer  *input.Coalescer
	Fanout     *fanout.Fanout
	VideoTrack *webrtc.TrackLocalStaticSample
	Hub        *Hub

	// RequestKeyframe re-arms the shared video track's keyframe gate. Called
	// whenever a new WebRTC peer attaches to the track after the gate has
	// already cleared, so the new peer's first frame is never mid-GOP.
	RequestKeyframe func()

	HTTPPort    int
	DisplayNum  string
	PublicIP    string // WEBRTC_PUBLIC_IP override; empty means "derive from Host header"
	SpawnEnv    func(displayNum string) []string
	Log         zerolog.Logger
}

// Session is one upgraded WebSocket connection. Reads happen on a single
// goroutine (readPump, run by the caller); JSON writes are serialized
// through writeMu, binary writes go through the WSSink's own channel
// drained by a background writer goroutine started in Run.
type Session struct {
	id   string
	conn *websocket.Conn
	deps Deps
	log  zerolog.Logger

	wsSink *fanout.WSSink

	writeMu sync.Mutex

	rtcMu sync.Mutex
	rtcS  *rtc.Session

	advertiseIP string
}

// NewSession wires a new, already-upgraded connection. r is the originating
// HTTP request, used only to derive the ICE advertisement IP when no
// WEBRTC_PUBLIC_IP override is configured.
func NewSession(conn *websocket.Conn, r *http.Request, deps Deps) *Session {
	id := uuid.NewString()
	s := &Session{
		id:          id,
		conn:        conn,
		deps:        deps,
		log:         deps.Log.With().Str("component", "ws-session").Str("session", id).Logger(),
		wsSink:      fanout.NewWSSink(deps.Log),
		advertiseIP: resolveAdvertiseIP(deps.PublicIP, r),
	}
	return s
}

// resolveAdvertiseIP picks the NAT-1-to-1 IP to advertise in ICE host
// candidates: the configured override if set, else the first IPv4 address
// the request's Host header resolves to.
func resolveAdvertiseIP(override string, r *http.Request) string {
	if override != "" {
		return override
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return ip.String()
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// Run registers the session, drives the binary write pump, reads until
// the connection closes or errors, then tears everything down. It blocks
// until the session ends; httpapi runs it on its own goroutine.
func (s *Session) Run() {
	s.deps.Hub.add(s)
	s.deps.Fanout.Register(s.wsSink)

	done := make(chan struct{})
	go s.writePump(done)

	s.readPump()

	close(done)
	s.deps.Fanout.Unregister(s.wsSink)
	s.deps.Hub.remove(s)
	s.closeRTC()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
	s.log.Info().Msg("session closed")
}

func (s *Session) writePump(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case pkt, ok := <-s.wsSink.Packets():
			if !ok {
				return
			}
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, pkt)
			s.writeMu.Unlock()
			if err != nil {
				s.log.Debug().Err(err).Msg("binary write failed")
				return
			}
		}
	}
}

func (s *Session) readPump() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Msg("read pump closed")
			return
		}
		s.handle(raw)
	}
}

// handle dispatches one inbound JSON message by its `type` field.
func (s *Session) handle(raw []byte) {
	m := parseMessage(raw)
	switch m.Type {
	case "ping":
		s.sendJSON(map[string]any{"type": "pong", "timestamp": m.Timestamp})

	case "keydown":
		s.deps.Coalescer.Submit(input.Task{Kind: input.KeyDown, Key: m.Key})
	case "keyup":
		s.deps.Coalescer.Submit(input.Task{Kind: input.KeyUp, Key: m.Key})

	case "mousemove":
		s.deps.Coalescer.Submit(input.Task{Kind: input.Mouse, NX: m.X, NY: m.Y})
	case "mousedown":
		s.deps.Coalescer.Submit(input.Task{Kind: input.Button, Button: m.Button, Down: true})
	case "mouseup":
		s.deps.Coalescer.Submit(input.Task{Kind: input.Button, Button: m.Button, Down: false})

	case "spawn":
		s.handleSpawn(m.Command)

	case "config":
		s.handleConfig(m.Config)

	case "resize":
		s.handleResize(m.Width, m.Height)

	case "webrtc_offer":
		s.handleOffer(m.SDP)
	case "webrtc_ice":
		s.handleICE(m.Candidate)
	case "webrtc_ready":
		s.wsSink.SetReady(true)

	default:
		s.log.Debug().Str("type", m.Type).Msg("unrecognized message type")
	}
}

// handleConfig applies the config message's batch rule: framerate is
// applied before bandwidth/quality within the single call to ApplyConfig,
// which itself collapses the result to at most one restart signal
// regardless of how many fields changed.
func (s *Session) handleConfig(c configFields) {
	s.deps.Registry.ApplyConfig(config.ConfigUpdate{
		FPS:           c.Framerate,
		BandwidthMbps: c.Bandwidth,
		Quality:       c.Quality,
		VBR:           c.VBR,
		CPUEffort:     c.CPUEffort,
		CPUThreads:    c.CPUThreads,
		DrawMouse:     c.EnableDesktopMouse,
	})
}

func (s *Session) handleResize(w, h int) {
	clamped, changed := s.deps.Registry.Resize(w, h)
	if !changed {
		return
	}
	s.resizeDisplay(clamped.Width, clamped.Height)
}

// resizeDisplay asks the graphical session to change its output geometry
// by running the external xrandr tool (not shipped with this repo) with
// --fb on the configured display, the same way input injection and the
// encoder child are invoked.
func (s *Session) resizeDisplay(w, h int) {
	cmd := exec.Command("xrandr", "--fb", fmt.Sprintf("%dx%d", w, h))
	if s.deps.SpawnEnv != nil {
		cmd.Env = s.deps.SpawnEnv(s.deps.DisplayNum)
	}
	if err := cmd.Run(); err != nil {
		s.log.Warn().Err(err).Msg("display resize failed")
	}
}

func (s *Session) handleSpawn(command string) {
	if _, ok := spawnAllowList[command]; !ok {
		s.log.Debug().Str("command", command).Msg("rejected spawn: not in allow-list")
		return
	}
	cmd := exec.Command(command)
	if s.deps.SpawnEnv != nil {
		cmd.Env = s.deps.SpawnEnv(s.deps.DisplayNum)
	}
	if err := cmd.Start(); err != nil {
		s.log.Warn().Err(err).Str("command", command).Msg("spawn failed")
	}
}

// handleOffer closes any previous peer connection for this client, creates
// a fresh one, applies the remote offer, and sends back the local answer.
// Since the new peer attaches to the already-running shared video track,
// it re-arms the track's keyframe gate first: without that, a peer that
// negotiates mid-GOP would start decoding from a non-keyframe and corrupt
// its first several frames.
func (s *Session) handleOffer(sdp gjson.Result) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(sdp.Raw), &offer); err != nil {
		s.log.Debug().Err(err).Msg("malformed webrtc_offer sdp")
		return
	}

	s.closeRTC()

	if s.deps.RequestKeyframe != nil {
		s.deps.RequestKeyframe()
	}

	rs, err := rtc.NewSession(rtc.Config{
		Port:        s.deps.HTTPPort,
		AdvertiseIP: s.advertiseIP,
		VideoTrack:  s.deps.VideoTrack,
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			s.sendJSON(map[string]any{"type": "webrtc_ice", "candidate": c})
		},
		OnClose: func() {
			s.rtcMu.Lock()
			s.rtcS = nil
			s.rtcMu.Unlock()
		},
		Log: s.deps.Log,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to create webrtc session")
		return
	}

	answer, err := rs.HandleOffer(offer)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to handle webrtc offer")
		_ = rs.Close()
		return
	}

	s.rtcMu.Lock()
	s.rtcS = rs
	s.rtcMu.Unlock()

	s.sendJSON(map[string]any{"type": "webrtc_answer", "sdp": answer})
}

func (s *Session) handleICE(candidate gjson.Result) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate.Raw), &c); err != nil {
		s.log.Debug().Err(err).Msg("malformed webrtc_ice candidate")
		return
	}
	s.rtcMu.Lock()
	rs := s.rtcS
	s.rtcMu.Unlock()
	if rs == nil {
		return
	}
	if err := rs.AddICECandidate(c); err != nil {
		s.log.Debug().Err(err).Msg("failed to add ice candidate")
	}
}

func (s *Session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Debug().Err(err).Msg("json write failed")
	}
}

func (s *Session) closeRTC() {
	s.rtcMu.Lock()
	defer s.rtcMu.Unlock()
	if s.rtcS != nil {
		_ = s.rtcS.Close()
		s.rtcS = nil
	}
}
