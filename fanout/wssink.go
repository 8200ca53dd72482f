package fanout

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lumacast/lumacast/frame"
)

const wsQueueSize = 300

const binaryFrameType = byte(1)

// WSSink is the per-client WebSocket binary fallback sink. Once the client
// has signaled webrtc_ready, Push itself discards every frame, so callers
// need not check Ready() before pushing.
type WSSink struct {
	queue chan []byte
	ready atomic.Bool
	log   zerolog.Logger
}

func NewWSSink(log zerolog.Logger) *WSSink {
	return &WSSink{
		queue: make(chan []byte, wsQueueSize),
		log:   log.With().Str("component", "ws-sink").Logger(),
	}
}

// SetReady marks the client as having taken over via WebRTC; once true,
// Push becomes a no-op.
func (s *WSSink) SetReady(ready bool) { s.ready.Store(ready) }
func (s *WSSink) Ready() bool         { return s.ready.Load() }

// Push frames f as [1-byte type][8-byte big-endian f64 wall-clock
// ms][frame bytes] and enqueues it without blocking; on a full queue the
// packet is dropped and a warning logged.
func (s *WSSink) Push(f frame.Frame) {
	if s.ready.Load() {
		return
	}
	packet := make([]byte, 1+8+len(f.Bytes))
	packet[0] = binaryFrameType
	wallclockMs := float64(f.CaptureTime.UnixNano()) / 1e6
	binary.BigEndian.PutUint64(packet[1:9], math.Float64bits(wallclockMs))
	copy(packet[9:], f.Bytes)

	select {
	case s.queue <- packet:
	default:
		s.log.Warn().Msg("ws binary sink queue full, dropping packet")
	}
}

// Packets returns the channel a per-connection writer should drain.
func (s *WSSink) Packets() <-chan []byte { return s.queue }
