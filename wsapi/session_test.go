package wsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lumacast/lumacast/config"
	"github.com/lumacast/lumacast/fanout"
	"github.com/lumacast/lumacast/input"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []input.Task
}

func (r *recordingDispatcher) dispatch(t input.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

func (r *recordingDispatcher) snapshot() []input.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]input.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *config.Registry, *recordingDispatcher, func()) {
	t.Helper()
	reg := config.NewRegistry(30)
	fo := fanout.New()
	hub := NewHub()
	rec := &recordingDispatcher{}
	coalescer := input.NewCoalescer(rec.dispatch)

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "lumacast")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go coalescer.Run(ctx)

	deps := Deps{
		Registry:   reg,
		Coalescer:  coalescer,
		Fanout:     fo,
		VideoTrack: track,
		Hub:        hub,
		HTTPPort:   0,
		DisplayNum: "99",
		Log:        zerolog.Nop(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewSession(conn, r, deps).Run()
	})

	srv := httptest.NewServer(mux)
	return srv, reg, rec, func() { cancel(); srv.Close() }
}

func newTestOfferSDP(t *testing.T) webrtc.SessionDescription {
	t.Helper()
	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()
	_, err = offerer.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	require.NoError(t, err)
	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))
	return offer
}

func TestWebrtcOfferReArmsSharedKeyframeGate(t *testing.T) {
	reg := config.NewRegistry(30)
	fo := fanout.New()
	hub := NewHub()
	coalescer := input.NewCoalescer(func(input.Task) {})

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "lumacast")
	require.NoError(t, err)

	var rearmed int
	var mu sync.Mutex

	deps := Deps{
		Registry:   reg,
		Coalescer:  coalescer,
		Fanout:     fo,
		VideoTrack: track,
		Hub:        hub,
		RequestKeyframe: func() {
			mu.Lock()
			rearmed++
			mu.Unlock()
		},
		HTTPPort: 0,
		Log:      zerolog.Nop(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewSession(conn, r, deps).Run()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	offer := newTestOfferSDP(t)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "webrtc_offer", "sdp": offer}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "webrtc_answer", reply["type"])

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, rearmed)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestPingPongRoundTrip(t *testing.T) {
	srv, _, _, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 42.5}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "pong", reply["type"])
	require.Equal(t, 42.5, reply["timestamp"])
}

func TestConfigMessageAppliesBatchAndCoalescesRestart(t *testing.T) {
	srv, reg, _, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "config", "bandwidth": 5, "framerate": 15,
	}))

	require.Eventually(t, func() bool {
		snap := reg.Snapshot()
		return snap.Config.FPS == 15 && snap.Config.BandwidthMbps == 5
	}, time.Second, 5*time.Millisecond)

	select {
	case <-reg.Restart:
	case <-time.After(time.Second):
		t.Fatal("expected exactly one restart signal")
	}
	select {
	case <-reg.Restart:
		t.Fatal("expected only one coalesced restart signal")
	default:
	}
}

func TestConfigMessageIdenticalToCurrentTriggersNoRestart(t *testing.T) {
	srv, reg, _, cleanup := newTestServer(t)
	defer cleanup()

	snap := reg.Snapshot()
	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "config", "quality": snap.Config.Quality,
	}))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1.0}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply)) // synchronization point

	select {
	case <-reg.Restart:
		t.Fatal("expected no restart for a no-op config message")
	default:
	}
}

func TestResizeZeroZeroIsRejected(t *testing.T) {
	srv, reg, _, cleanup := newTestServer(t)
	defer cleanup()

	before := reg.Screen()
	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "resize", "width": 0, "height": 0}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1.0}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))

	require.Equal(t, before, reg.Screen())
}

func TestResizeClampsToMinimum(t *testing.T) {
	srv, reg, _, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "resize", "width": 10, "height": 10}))
	require.Eventually(t, func() bool {
		s := reg.Screen()
		return s.Width == config.MinWidth && s.Height == config.MinHeight
	}, time.Second, 5*time.Millisecond)
}

func TestSpawnRejectsOutsideAllowList(t *testing.T) {
	srv, _, _, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	// rm is not in the allow-list; the session must not crash or hang.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "spawn", "command": "rm"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 7.0}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "pong", reply["type"])
}

func TestMouseMoveForwardsToCoalescer(t *testing.T) {
	srv, _, rec, cleanup := newTestServer(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mousemove", "x": 0.5, "y": 0.5}))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 1
	}, time.Second, 5*time.Millisecond)

	tasks := rec.snapshot()
	require.Equal(t, input.Mouse, tasks[0].Kind)
	require.Equal(t, 0.5, tasks[0].NX)
}
