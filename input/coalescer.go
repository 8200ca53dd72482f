package input

import (
	"context"
	"time"
)

const (
	queueSize  = 1024
	moveMinGap = 8 * time.Millisecond // 125Hz cap
)

// Coalescer is the single FIFO worker standing between the WebSocket read
// pumps and the injection subprocesses. Submit is non-blocking;
// contiguous runs of Mouse tasks are collapsed to the most recent sample
// and rate-capped to 125Hz, while keys and buttons are never reordered or
// dropped relative to each other or the move that preceded them.
type Coalescer struct {
	queue    chan Task
	dispatch func(Task)
}

// NewCoalescer wires dispatch as the function invoked for each task that
// survives coalescing — normally an *Injector's Dispatch method.
func NewCoalescer(dispatch func(Task)) *Coalescer {
	return &Coalescer{
		queue:    make(chan Task, queueSize),
		dispatch: dispatch,
	}
}

// Submit enqueues a task, dropping it silently if the queue is full.
func (c *Coalescer) Submit(t Task) {
	select {
	case c.queue <- t:
	default:
	}
}

// Run drains the queue until ctx is cancelled.
func (c *Coalescer) Run(ctx context.Context) {
	var lastMoveDispatch time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-c.queue:
			if !ok {
				return
			}
			if task.Kind != Mouse {
				c.dispatch(task)
				continue
			}
			c.coalesceAndDispatch(task, &lastMoveDispatch)
		}
	}
}

// coalesceAndDispatch absorbs every Mouse task immediately available in
// the queue (a contiguous run), keeping only the latest sample, then
// flushes it subject to the 125Hz rate cap before returning control to
// Run so the next (possibly non-Mouse) task is handled in order.
func (c *Coalescer) coalesceAndDispatch(latest Task, lastMoveDispatch *time.Time) {
	for {
		select {
		case next, ok := <-c.queue:
			if !ok {
				c.flushMove(latest, lastMoveDispatch)
				return
			}
			if next.Kind == Mouse {
				latest = next
				continue
			}
			c.flushMove(latest, lastMoveDispatch)
			c.dispatch(next)
			return
		default:
			c.flushMove(latest, lastMoveDispatch)
			return
		}
	}
}

func (c *Coalescer) flushMove(t Task, lastMoveDispatch *time.Time) {
	if time.Since(*lastMoveDispatch) < moveMinGap {
		return
	}
	c.dispatch(t)
	*lastMoveDispatch = time.Now()
}
