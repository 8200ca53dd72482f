// Package testsource replaces X11 screen capture with a synthetic frame
// source when TEST_PATTERN is set, so the rest of the pipeline can be
// exercised without a real graphical session. It draws a moving color-bar
// pattern as raw BGR frames written directly to the encoder child's stdin.
package testsource

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"

	"gocv.io/x/gocv"
	"github.com/rs/zerolog"
)

var barColors = []color.RGBA{
	{255, 255, 255, 0},
	{0, 255, 255, 0},
	{255, 255, 0, 0},
	{0, 255, 0, 0},
	{255, 0, 255, 0},
	{0, 0, 255, 0},
	{255, 0, 0, 0},
}

// Run draws frames into w at the given width/height/fps until ctx is
// cancelled or a write fails (the encoder child exited, closing its
// stdin). It closes w before returning.
func Run(ctx context.Context, w io.WriteCloser, width, height, fps int, log zerolog.Logger) {
	defer w.Close()

	if fps <= 0 {
		fps = 30
	}
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	barWidth := width / len(barColors)
	if barWidth < 1 {
		barWidth = 1
	}

	var frameNum int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
			offset := (frameNum * 4) % width
			for i, c := range barColors {
				x0 := (i*barWidth + offset) % width
				x1 := x0 + barWidth
				if x1 > width {
					x1 = width
				}
				if x1 <= x0 {
					continue
				}
				rect := image.Rect(x0, 0, x1, height)
				gocv.Rectangle(&mat, rect, c, -1)
			}
			gocv.PutText(&mat, fmt.Sprintf("%d", time.Now().UnixMilli()),
				image.Pt(10, height-20), gocv.FontHersheyPlain, 1.5,
				color.RGBA{0, 0, 0, 0}, 2)

			_, err := w.Write(mat.ToBytes())
			mat.Close()
			if err != nil {
				log.Debug().Err(err).Msg("test source write stopped, encoder stdin closed")
				return
			}
			frameNum++
		}
	}
}
