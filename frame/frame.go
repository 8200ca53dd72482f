// Package frame defines the value types that flow from the container
// de-muxer through the fan-out to both client sinks.
package frame

import "time"

// Frame is one complete compressed video frame payload, with no container
// framing left on it, tagged with the wall-clock time it was demuxed at and
// the encoder stream-epoch that produced it.
type Frame struct {
	Bytes       []byte
	CaptureTime time.Time
	Epoch       uint32
}

// Clone returns a Frame with its own copy of Bytes, so that concurrent sinks
// never share (and never race on) the same backing array.
func (f Frame) Clone() Frame {
	b := make([]byte, len(f.Bytes))
	copy(b, f.Bytes)
	return Frame{Bytes: b, CaptureTime: f.CaptureTime, Epoch: f.Epoch}
}
