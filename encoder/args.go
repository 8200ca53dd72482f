package encoder

import (
	"fmt"

	"github.com/lumacast/lumacast/config"
)

// DisplaySource resolves the capture source for a given DISPLAY_NUM,
// always in the ":<num>.0" screen-qualified form.
func DisplaySource(displayNum string) string {
	return fmt.Sprintf(":%s.0", displayNum)
}

// quantizerFromQuality maps EncoderConfig.Quality (10..100) linearly onto a
// quantizer in [4,63].
func quantizerFromQuality(quality int) int {
	q := 50 - (quality-10)*46/90
	if q < 4 {
		return 4
	}
	if q > 63 {
		return 63
	}
	return q
}

// maxrateKbpsFromQuality maps quality onto an encoder maxrate in kbps.
func maxrateKbpsFromQuality(quality int) int {
	return 2000 + (quality-10)*18000/90
}

// decimationKeepEvery is the hard upper bound on how many frames the
// vbr pre-filter may drop in a row before forcing a keep-alive frame.
const decimationKeepEvery = 15

// BuildArgs synthesizes the encoder child's argument vector from a
// registry snapshot and the display number (ignored when testSource is
// non-empty, in which case testSource names the synthetic capture source
// instead of real X11 capture).
func BuildArgs(snap config.Snapshot, displayNum string, testSource string) []string {
	cfg := snap.Config
	screen := snap.Screen

	var captureArgs []string
	if testSource != "" {
		// The synthetic generator (testsource/) writes raw BGR24 frames to
		// the child's stdin at cfg.FPS; this input spec must match exactly.
		captureArgs = []string{
			"-f", "rawvideo",
			"-pix_fmt", "bgr24",
			"-s", fmt.Sprintf("%dx%d", screen.Width, screen.Height),
			"-framerate", fmt.Sprintf("%d", cfg.FPS),
			"-i", "pipe:0",
		}
	} else {
		mouse := "0"
		if cfg.DrawMouse {
			mouse = "1"
		}
		captureArgs = []string{
			"-f", "x11grab",
			"-video_size", fmt.Sprintf("%dx%d", screen.Width, screen.Height),
			"-framerate", fmt.Sprintf("%d", cfg.FPS),
			"-draw_mouse", mouse,
			"-i", DisplaySource(displayNum),
		}
	}

	args := append([]string{}, captureArgs...)

	if cfg.VBR {
		args = append(args,
			"-vf", fmt.Sprintf("mpdecimate=max=%d,setpts=N/FRAME_RATE/TB", decimationKeepEvery),
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-g", fmt.Sprintf("%d", cfg.FPS), // GOP length = fps (1s)
		"-threads", fmt.Sprintf("%d", cfg.CPUThreads),
	)

	switch cfg.TargetMode {
	case config.TargetBandwidth:
		kbps := cfg.BandwidthMbps * 1000
		bufsize := int(float64(kbps) * 0.2)
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", kbps),
			"-maxrate", fmt.Sprintf("%dk", kbps),
			"-bufsize", fmt.Sprintf("%dk", bufsize),
		)
	case config.TargetQuality:
		q := quantizerFromQuality(cfg.Quality)
		maxrate := maxrateKbpsFromQuality(cfg.Quality)
		bufsize := int(float64(maxrate) * 0.2)
		args = append(args,
			"-qp", fmt.Sprintf("%d", q),
			"-maxrate", fmt.Sprintf("%dk", maxrate),
			"-bufsize", fmt.Sprintf("%dk", bufsize),
		)
	}

	args = append(args,
		"-cpu-used", fmt.Sprintf("%d", cfg.CPUEffort),
		"-f", "ivf", // a simple index+frame container whose header carries the DKIF magic
		"pipe:1",
	)

	return args
}
