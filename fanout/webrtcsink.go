package fanout

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/lumacast/lumacast/frame"
)

const webrtcQueueSize = 300

// WebRTCSink is the pacing writer for the shared video track: every peer
// connection attaches to the same track, so there is exactly one of these
// per process, not one per client. It holds a one-slot look-ahead so every
// written sample carries an accurate inter-frame duration, and gates writes
// behind a keyframe so a freshly (re)started stream, or a newly attached
// peer, never has to decode starting mid-GOP.
type WebRTCSink struct {
	track   *webrtc.TrackLocalStaticSample
	queue   chan frame.Frame
	fpsFn   func() int
	epochFn func() uint32
	log     zerolog.Logger

	waitingForKeyframe bool
	rearm              atomic.Bool
}

// NewWebRTCSink builds a sink writing to track. fpsFn reports the current
// configured fps (used for the default flush duration on epoch change).
// epochFn reports the supervisor's current stream epoch; a frame is only
// ever written while its epoch still matches the supervisor's current one.
func NewWebRTCSink(track *webrtc.TrackLocalStaticSample, fpsFn func() int, epochFn func() uint32, log zerolog.Logger) *WebRTCSink {
	return &WebRTCSink{
		track:              track,
		queue:              make(chan frame.Frame, webrtcQueueSize),
		fpsFn:              fpsFn,
		epochFn:            epochFn,
		log:                log.With().Str("component", "webrtc-sink").Logger(),
		waitingForKeyframe: true,
	}
}

// RequestKeyframe re-arms the keyframe gate: the next frame off the queue
// must be a keyframe before anything is written again. Callers invoke this
// whenever a new peer attaches to the shared track after the gate has
// already cleared, so that peer's first decoded frame is never mid-GOP.
// Safe to call from any goroutine.
func (s *WebRTCSink) RequestKeyframe() {
	s.rearm.Store(true)
}

// Push enqueues f for pacing. On a full queue the frame is dropped and a
// warning logged.
func (s *WebRTCSink) Push(f frame.Frame) {
	select {
	case s.queue <- f:
	default:
		s.log.Warn().Msg("webrtc sink queue full, dropping frame")
	}
}

// Run drives the one-slot look-ahead pacing loop until ctx is cancelled.
func (s *WebRTCSink) Run(ctx context.Context) {
	var held *frame.Frame

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.queue:
			if s.rearm.CompareAndSwap(true, false) {
				s.waitingForKeyframe = true
			}

			if held == nil {
				if s.admit(f) {
					fc := f
					held = &fc
				}
				continue
			}

			if f.Epoch != held.Epoch {
				s.write(*held, s.defaultDuration())
				s.waitingForKeyframe = true
				if s.admit(f) {
					fc := f
					held = &fc
				} else {
					held = nil
				}
				continue
			}

			dur := f.CaptureTime.Sub(held.CaptureTime)
			if dur < time.Microsecond {
				dur = time.Microsecond
			}
			s.write(*held, dur)
			fc := f
			held = &fc
		}
	}
}

// admit applies the keyframe gate: while waiting, non-keyframe frames are
// refused (not held, not written); the first keyframe clears the gate.
func (s *WebRTCSink) admit(f frame.Frame) bool {
	if s.waitingForKeyframe {
		if !isKeyframe(f.Bytes) {
			return false
		}
		s.waitingForKeyframe = false
	}
	return true
}

func (s *WebRTCSink) defaultDuration() time.Duration {
	fps := s.fpsFn()
	if fps <= 0 {
		fps = 30
	}
	return time.Second / time.Duration(fps)
}

func (s *WebRTCSink) write(f frame.Frame, dur time.Duration) {
	if s.epochFn != nil && f.Epoch != s.epochFn() {
		// Stale relative to the supervisor's current epoch: never written.
		return
	}
	if dur < time.Microsecond {
		dur = time.Microsecond
	}
	err := s.track.WriteSample(media.Sample{Data: f.Bytes, Duration: dur})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to write sample to shared video track")
	}
}
