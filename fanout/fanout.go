// Package fanout distributes each demuxed frame to every active sink: the
// shared WebRTC pacing sink and a per-client WebSocket binary sink.
package fanout

import (
	"sync"

	"github.com/lumacast/lumacast/frame"
)

// Sink receives a copy of every frame the fan-out distributes. Both
// WebRTCSink and WSSink implement it.
type Sink interface {
	Push(f frame.Frame)
}

// Fanout holds the current set of active sinks and pushes every frame it
// receives to each of them, under a read lock so Push never blocks
// Register/Unregister for long.
type Fanout struct {
	mu    sync.RWMutex
	sinks map[Sink]struct{}
}

func New() *Fanout {
	return &Fanout{sinks: make(map[Sink]struct{})}
}

func (fo *Fanout) Register(s Sink) {
	fo.mu.Lock()
	defer fo.mu.Unlock()
	fo.sinks[s] = struct{}{}
}

func (fo *Fanout) Unregister(s Sink) {
	fo.mu.Lock()
	defer fo.mu.Unlock()
	delete(fo.sinks, s)
}

// Push hands a copy of f to every registered sink. Each sink owns its own
// back-pressure policy: the fan-out itself never blocks and never drops on
// behalf of a sink.
func (fo *Fanout) Push(f frame.Frame) {
	fo.mu.RLock()
	defer fo.mu.RUnlock()
	for s := range fo.sinks {
		s.Push(f.Clone())
	}
}
