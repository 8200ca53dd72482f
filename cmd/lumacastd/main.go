// Command lumacastd is the single-host remote-desktop server: it wires
// together the config registry, input coalescer, encoder supervisor,
// container de-muxer, frame fan-out, WebRTC sessions, WebSocket sessions,
// and the HTTP front into one process listening on one port.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lumacast/lumacast/config"
	"github.com/lumacast/lumacast/encoder"
	"github.com/lumacast/lumacast/fanout"
	"github.com/lumacast/lumacast/httpapi"
	"github.com/lumacast/lumacast/input"
	"github.com/lumacast/lumacast/wsapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port        int
		fps         int
		displayNum  string
		publicIP    string
		testPattern bool
	)

	cmd := &cobra.Command{
		Use:   "lumacastd",
		Short: "Low-latency remote-desktop server",
		RunE: func(cmd *cobra.Command, args []string) error {
			static, err := config.LoadStaticConfig()
			if err != nil {
				return fmt.Errorf("loading static config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				static.Port = port
			}
			if cmd.Flags().Changed("fps") {
				static.FPS = fps
			}
			if cmd.Flags().Changed("display") {
				static.DisplayNum = displayNum
			}
			if cmd.Flags().Changed("public-ip") {
				static.WebRTCPublicIP = publicIP
			}
			if cmd.Flags().Changed("test-pattern") {
				static.TestPattern = testPattern
			}
			return run(static)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP/WebSocket listen port")
	cmd.Flags().IntVar(&fps, "fps", 30, "default capture/encode framerate")
	cmd.Flags().StringVar(&displayNum, "display", "99", "X11 display number to capture")
	cmd.Flags().StringVar(&publicIP, "public-ip", "", "ICE host candidate IP override")
	cmd.Flags().BoolVar(&testPattern, "test-pattern", false, "replace screen capture with a synthetic test source")

	return cmd
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENVIRONMENT") == "production" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func run(static config.StaticConfig) error {
	log := newLogger().With().Str("component", "main").Logger()

	reg := config.NewRegistry(static.FPS)
	fo := fanout.New()
	hub := wsapi.NewHub()

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", "lumacast",
	)
	if err != nil {
		return fmt.Errorf("creating shared video track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := encoder.New(reg, static.DisplayNum, testSourceName(static.TestPattern),
		"ffmpeg", fo.Push, log)

	wrSink := fanout.NewWebRTCSink(videoTrack,
		func() int { return reg.Snapshot().Config.FPS },
		sup.Epoch,
		log,
	)
	fo.Register(wrSink)

	inj := &input.Injector{
		ToolPath:   "xdotool",
		DisplayNum: static.DisplayNum,
		Registry:   reg,
		Log:        log,
	}
	coalescer := input.NewCoalescer(inj.Dispatch)

	go wrSink.Run(ctx)
	go coalescer.Run(ctx)
	go sup.Run(ctx)

	deps := wsapi.Deps{
		Registry:        reg,
		Coalescer:       coalescer,
		Fanout:          fo,
		VideoTrack:      videoTrack,
		Hub:             hub,
		RequestKeyframe: wrSink.RequestKeyframe,
		HTTPPort:        static.Port,
		DisplayNum: static.DisplayNum,
		PublicIP:   static.WebRTCPublicIP,
		SpawnEnv: func(displayNum string) []string {
			return append(os.Environ(), fmt.Sprintf("DISPLAY=:%s", displayNum))
		},
		Log: log,
	}

	srv := &httpapi.Server{
		PublicDir: "public",
		Deps:      deps,
		Status: func() httpapi.StatusReport {
			screen := reg.Screen()
			return httpapi.StatusReport{
				EncoderState: sup.State().String(),
				Epoch:        sup.Epoch(),
				Width:        screen.Width,
				Height:       screen.Height,
				Clients:      hub.Count(),
			}
		},
		Log: log,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", static.Port))
	if err != nil {
		return fmt.Errorf("binding listen port %d: %w", static.Port, err)
	}

	httpSrv := &http.Server{Handler: srv.NewMux()}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()
	log.Info().Int("port", static.Port).Msg("lumacastd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server exited")
		}
	}

	// Cleanup in reverse-registration order: encoder child first, then
	// the listener.
	cancel()
	sup.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}

// testSourceName returns the synthetic capture source name the supervisor
// should use when TEST_PATTERN is set, or "" to use real X11 capture.
func testSourceName(enabled bool) string {
	if !enabled {
		return ""
	}
	return "testpattern"
}
