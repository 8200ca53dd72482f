package rtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Session is one client's WebRTC peer connection. A new Session replaces
// any previous one for the same client on each renegotiation; the caller
// is responsible for calling Close on the old session first.
type Session struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Config carries everything a new Session needs. OnICECandidate is called
// once per gathered local candidate (the nil end-of-candidates marker is
// suppressed — callers only see real candidates). OnClose is
// called once, from whichever goroutine observes the connection entering a
// terminal state.
type Config struct {
	Port        int
	AdvertiseIP string
	VideoTrack  *webrtc.TrackLocalStaticSample

	OnICECandidate func(webrtc.ICECandidateInit)
	OnClose        func()

	Log zerolog.Logger
}

// NewSession builds a peer connection, attaches the shared video track as
// a sendonly transceiver, and wires ICE/connection-state callbacks.
func NewSession(cfg Config) (*Session, error) {
	se := newSettingEngine(cfg.Port, cfg.AdvertiseIP)
	api, err := buildAPI(se)
	if err != nil {
		return nil, fmt.Errorf("rtc: building api: %w", err)
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("rtc: creating peer connection: %w", err)
	}

	tr, err := pc.AddTransceiverFromTrack(cfg.VideoTrack, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("rtc: attaching shared video track: %w", err)
	}

	s := &Session{pc: pc, log: cfg.Log.With().Str("component", "rtc-session").Logger()}
	go s.drainRTCP(tr.Sender())

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cfg.OnICECandidate == nil {
			return
		}
		cfg.OnICECandidate(c.ToJSON())
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.log.Debug().Str("state", state.String()).Msg("ice connection state changed")
	})

	var closeOnce sync.Once
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug().Str("state", state.String()).Msg("peer connection state changed")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			if cfg.OnClose != nil {
				closeOnce.Do(cfg.OnClose)
			}
		}
	})

	return s, nil
}

// drainRTCP reads RTCP packets off the video sender until it errors (peer
// closed). pion requires this loop to run for every sender or its RTCP
// buffer fills and blocks; it also doubles as the PLI/FIR observation
// point. The video track is shared across every peer, so a single client's
// loss report can't trigger a per-client re-encode, but logging it is
// still useful operator signal.
func (s *Session) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				s.log.Debug().Msg("received keyframe request from client")
			}
		}
	}
}

// HandleOffer applies a remote offer and returns the local answer, with
// congestion-control feedback lines stripped from the answer SDP before it
// is set as the local description: bitrate is server-driven via the
// config channel, not the browser's own congestion controller.
func (s *Session) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtc: set remote description: %w", err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtc: create answer: %w", err)
	}

	munged := webrtc.SessionDescription{Type: answer.Type, SDP: mungeSDP(answer.SDP)}
	if err := s.pc.SetLocalDescription(munged); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("rtc: set local description: %w", err)
	}

	return munged, nil
}

// AddICECandidate applies a remote candidate trickled in by the client.
func (s *Session) AddICECandidate(c webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(c)
}

// Close closes the underlying peer connection. Safe to call more than
// once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pc.Close()
}

// mungeSDP strips congestion-control feedback lines (transport-cc,
// goog-remb) from an SDP body, deliberately disabling browser-side rate
// control since the encoder supervisor is the sole bitrate authority.
func mungeSDP(sdp string) string {
	lines := strings.Split(sdp, "\r\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.Contains(line, "transport-cc") || strings.Contains(line, "goog-remb") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\r\n")
}
