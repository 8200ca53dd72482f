// Package container parses the byte-stream container the encoder child
// writes to stdout: a fixed 32-byte file header beginning with the ASCII
// magic "DKIF", followed by repeating frames each prefixed by a 12-byte
// header (little-endian frame size, then 8 ignored timestamp bytes).
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lumacast/lumacast/frame"
)

const (
	fileHeaderSize  = 32
	magic           = "DKIF"
	frameHeaderSize = 12
)

// ErrBadMagic is returned by NewDemuxer when the stream's file header does
// not begin with "DKIF". The supervisor observes this only indirectly: the
// de-muxer instance simply stops, and stdout EOF follows from the
// supervisor's perspective.
var ErrBadMagic = errors.New("container: bad magic, expected DKIF")

// Demuxer reads frames off an encoder child's stdout.
type Demuxer struct {
	r     io.Reader
	epoch uint32
}

// NewDemuxer reads and validates the 32-byte file header, then returns a
// Demuxer ready to yield frames tagged with the given stream epoch.
func NewDemuxer(r io.Reader, epoch uint32) (*Demuxer, error) {
	hdr := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("container: reading file header: %w", err)
	}
	if string(hdr[:4]) != magic {
		return nil, ErrBadMagic
	}
	return &Demuxer{r: r, epoch: epoch}, nil
}

// Next reads one frame from the stream. It returns a bare io.EOF when the
// stream ends cleanly between frames; a truncated header or payload yields
// a wrapped error instead.
func (d *Demuxer) Next() (frame.Frame, error) {
	hdr := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(d.r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return frame.Frame{}, fmt.Errorf("container: truncated frame header: %w", err)
		}
		return frame.Frame{}, err
	}
	size := binary.LittleEndian.Uint32(hdr[0:4])
	// hdr[4:12] is a stream timestamp, deliberately ignored — wall clock
	// is substituted on emit.

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return frame.Frame{}, fmt.Errorf("container: truncated frame payload: %w", err)
	}

	return frame.Frame{
		Bytes:       payload,
		CaptureTime: time.Now(),
		Epoch:       d.epoch,
	}, nil
}
