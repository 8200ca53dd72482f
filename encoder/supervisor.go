// Package encoder drives the external video encoder as a hot-reloadable
// child process. It owns the Idle → Starting → Running → Stopping → Idle
// state machine, tied to the container de-muxer reaching EOF rather than
// to any timer, so at most one encoder child is ever alive.
package encoder

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumacast/lumacast/config"
	"github.com/lumacast/lumacast/container"
	"github.com/lumacast/lumacast/frame"
	"github.com/lumacast/lumacast/testsource"
)

type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

const restartBackoff = 1 * time.Second

// Supervisor spawns, monitors, kills, and restarts the encoder child.
// There is exactly one Supervisor per process; its Run method is the sole
// goroutine that starts or stops the encoder child.
type Supervisor struct {
	Registry    *config.Registry
	DisplayNum  string
	TestSource  string // non-empty: synthetic capture source name, skips X11 capture
	EncoderPath string // defaults to "ffmpeg" if empty
	OnFrame     func(frame.Frame)
	Log         zerolog.Logger

	state     atomic.Int32
	epoch     atomic.Uint32
	shouldRun atomic.Bool

	mu      sync.Mutex
	current *exec.Cmd
}

// New builds a Supervisor ready to Run.
func New(reg *config.Registry, displayNum, testSource, encoderPath string, onFrame func(frame.Frame), log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		Registry:    reg,
		DisplayNum:  displayNum,
		TestSource:  testSource,
		EncoderPath: encoderPath,
		OnFrame:     onFrame,
		Log:         log.With().Str("component", "encoder").Logger(),
	}
	if s.EncoderPath == "" {
		s.EncoderPath = "ffmpeg"
	}
	s.shouldRun.Store(true)
	return s
}

func (s *Supervisor) State() State { return State(s.state.Load()) }
func (s *Supervisor) Epoch() uint32 { return s.epoch.Load() }

// Shutdown stops the restart loop and kills the current child, if any.
func (s *Supervisor) Shutdown() {
	s.shouldRun.Store(false)
	s.killCurrent()
}

func (s *Supervisor) killCurrent() {
	s.mu.Lock()
	cmd := s.current
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Run drives the state machine until ctx is cancelled or Shutdown is
// called. It never returns two live encoder children: each loop iteration
// spawns, drains the de-muxer to EOF, waits for the child to exit, and only
// then considers spawning another.
func (s *Supervisor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for s.shouldRun.Load() {
		s.runOnce(ctx)

		if !s.shouldRun.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}

// runOnce spawns one encoder child, drains it to EOF, and waits for exit.
func (s *Supervisor) runOnce(ctx context.Context) {
	s.state.Store(int32(Starting))
	snap := s.Registry.Snapshot()
	epoch := s.epoch.Add(1)

	args := BuildArgs(snap, s.DisplayNum, s.TestSource)
	cmd := exec.Command(s.EncoderPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to open encoder stdout pipe")
		s.state.Store(int32(Idle))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.Log.Error().Err(err).Msg("failed to open encoder stderr pipe")
		s.state.Store(int32(Idle))
		return
	}

	var stdin io.WriteCloser
	if s.TestSource != "" {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			s.Log.Error().Err(err).Msg("failed to open encoder stdin pipe")
			s.state.Store(int32(Idle))
			return
		}
	}

	if err := cmd.Start(); err != nil {
		s.Log.Error().Err(err).Str("path", s.EncoderPath).Msg("failed to start encoder")
		s.state.Store(int32(Idle))
		return
	}

	s.mu.Lock()
	s.current = cmd
	s.mu.Unlock()
	s.state.Store(int32(Running))
	s.Log.Info().Uint32("epoch", epoch).Strs("args", args).Msg("encoder started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logStderr(stderr, s.Log)
	}()

	var genCtx context.Context
	var genCancel context.CancelFunc
	if stdin != nil {
		genCtx, genCancel = context.WithCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			testsource.Run(genCtx, stdin, snap.Screen.Width, snap.Screen.Height, snap.Config.FPS, s.Log)
		}()
	}

	// Watch for a coalesced config/restart signal and terminate the
	// current child early; the de-muxer below will observe EOF, which
	// lets this iteration finish and the next one begin with a fresh
	// snapshot.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-s.Registry.Restart:
			s.state.Store(int32(Stopping))
			s.killCurrent()
		case <-watchDone:
		}
	}()

	s.drainToEOF(stdout, epoch)
	close(watchDone)
	if genCancel != nil {
		genCancel()
	}

	_ = cmd.Wait()
	wg.Wait()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.state.Store(int32(Idle))
	s.Log.Info().Uint32("epoch", epoch).Msg("encoder exited")
}

// drainToEOF reads the container stream until EOF or a fatal parse error,
// emitting each frame via OnFrame. It always reads to EOF (or the
// underlying pipe closing) so the child's stdout never backs up and
// deadlocks the encoder.
func (s *Supervisor) drainToEOF(stdout io.ReadCloser, epoch uint32) {
	demux, err := container.NewDemuxer(stdout, epoch)
	if err != nil {
		s.Log.Warn().Err(err).Msg("container header mismatch")
		_, _ = io.Copy(io.Discard, stdout)
		return
	}

	for {
		f, err := demux.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.Log.Warn().Err(err).Msg("de-muxer read error")
			_, _ = io.Copy(io.Discard, stdout)
			return
		}
		if s.OnFrame != nil {
			s.OnFrame(f)
		}
	}
}
