// Package config holds the process-wide mutable state that the rest of the
// server reads: the live encoder parameters (EncoderConfig) and the
// current screen geometry (ScreenState). Both live behind one lock and one
// coalescing restart-signal channel, so a burst of writes collapses into a
// single encoder restart.
package config

import "sync"

const (
	MinWidth  = 320
	MinHeight = 240
	MaxWidth  = 3840
	MaxHeight = 2160
)

// TargetMode selects the encoder's rate-control strategy.
type TargetMode string

const (
	TargetBandwidth TargetMode = "bandwidth"
	TargetQuality   TargetMode = "quality"
)

// EncoderConfig is the set of live, client-mutable encoder parameters.
type EncoderConfig struct {
	TargetMode     TargetMode
	BandwidthMbps  int
	Quality        int
	FPS            int
	VBR            bool
	CPUEffort      int
	CPUThreads     int
	DrawMouse      bool
}

// ScreenState is the current output geometry.
type ScreenState struct {
	Width  int
	Height int
}

// Registry is the process-wide singleton holding EncoderConfig and
// ScreenState. Every mutator takes the same lock; any mutation whose new
// value differs from the current one sends a non-blocking, coalesced signal
// on Restart so exactly one supervisor restart follows any burst of writes.
type Registry struct {
	mu      sync.Mutex
	cfg     EncoderConfig
	screen  ScreenState
	Restart chan struct{}
}

// NewRegistry builds a registry seeded with the given default fps and the
// maximum screen geometry.
func NewRegistry(defaultFPS int) *Registry {
	return &Registry{
		cfg: EncoderConfig{
			TargetMode:    TargetQuality,
			BandwidthMbps: 4,
			Quality:       70,
			FPS:           defaultFPS,
			VBR:           false,
			CPUEffort:     4,
			CPUThreads:    2,
			DrawMouse:     true,
		},
		screen:  ScreenState{Width: MaxWidth, Height: MaxHeight},
		Restart: make(chan struct{}, 1),
	}
}

// Snapshot is a consistent point-in-time read of both EncoderConfig and
// ScreenState, used by the supervisor to compose the next argument vector.
type Snapshot struct {
	Config EncoderConfig
	Screen ScreenState
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Config: r.cfg, Screen: r.screen}
}

func (r *Registry) Screen() ScreenState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screen
}

// signalRestart is a non-blocking, coalescing send: if one restart is
// already pending, further signals are dropped rather than queued.
func (r *Registry) signalRestart() {
	select {
	case r.Restart <- struct{}{}:
	default:
	}
}

// ConfigUpdate carries an optional subset of EncoderConfig fields; nil
// fields are left untouched.
type ConfigUpdate struct {
	BandwidthMbps *int
	Quality       *int
	FPS           *int
	VBR           *bool
	CPUEffort     *int
	CPUThreads    *int
	DrawMouse     *bool
}

// ApplyConfig applies every present field under one lock section, switching
// TargetMode to whichever of bandwidth/quality was supplied (framerate never
// changes the mode). If any applied field actually differs from the
// previous value, exactly one restart signal is sent after the lock is
// released, no matter how many fields changed.
func (r *Registry) ApplyConfig(u ConfigUpdate) {
	r.mu.Lock()
	changed := false

	// Framerate first, then rate-control.
	if u.FPS != nil && clampInt(*u.FPS, 1, 120) != r.cfg.FPS {
		r.cfg.FPS = clampInt(*u.FPS, 1, 120)
		changed = true
	}
	if u.BandwidthMbps != nil {
		if r.cfg.TargetMode != TargetBandwidth || *u.BandwidthMbps != r.cfg.BandwidthMbps {
			r.cfg.TargetMode = TargetBandwidth
			r.cfg.BandwidthMbps = *u.BandwidthMbps
			changed = true
		}
	}
	if u.Quality != nil {
		if r.cfg.TargetMode != TargetQuality || clampInt(*u.Quality, 10, 100) != r.cfg.Quality {
			r.cfg.TargetMode = TargetQuality
			r.cfg.Quality = clampInt(*u.Quality, 10, 100)
			changed = true
		}
	}
	if u.VBR != nil && *u.VBR != r.cfg.VBR {
		r.cfg.VBR = *u.VBR
		changed = true
	}
	if u.CPUEffort != nil && clampInt(*u.CPUEffort, 0, 8) != r.cfg.CPUEffort {
		r.cfg.CPUEffort = clampInt(*u.CPUEffort, 0, 8)
		changed = true
	}
	if u.CPUThreads != nil && clampInt(*u.CPUThreads, 1, 16) != r.cfg.CPUThreads {
		r.cfg.CPUThreads = clampInt(*u.CPUThreads, 1, 16)
		changed = true
	}
	if u.DrawMouse != nil && *u.DrawMouse != r.cfg.DrawMouse {
		r.cfg.DrawMouse = *u.DrawMouse
		changed = true
	}
	r.mu.Unlock()

	if changed {
		r.signalRestart()
	}
}

// Resize clamps (w,h) into the allowed bounds and updates ScreenState. It
// returns the clamped size and whether it differs from the previous one; a
// difference triggers a restart signal. (0,0) is rejected outright rather
// than clamped to the minimum, since it signals "no resize requested"
// rather than an actual target size.
func (r *Registry) Resize(w, h int) (ScreenState, bool) {
	if w == 0 && h == 0 {
		return r.Screen(), false
	}
	clamped := ScreenState{
		Width:  clampInt(w, MinWidth, MaxWidth),
		Height: clampInt(h, MinHeight, MaxHeight),
	}

	r.mu.Lock()
	changed := clamped != r.screen
	if changed {
		r.screen = clamped
	}
	r.mu.Unlock()

	if changed {
		r.signalRestart()
	}
	return clamped, changed
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
