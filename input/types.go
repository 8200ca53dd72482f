// Package input implements the input coalescer: it turns a high-rate,
// possibly bursty stream of pointer/key/button events into a well-ordered
// sequence of injection-tool invocations, rate-capping and coalescing
// contiguous pointer-move runs.
package input

// Kind tags the variant of an input Task.
type Kind int

const (
	KeyDown Kind = iota
	KeyUp
	Mouse
	Button
)

// Task is one input event, already in the coalescer's own shape (the
// WebSocket router has already pulled it out of its JSON envelope).
type Task struct {
	Kind Kind

	Key string // KeyDown/KeyUp: the symbolic web key name, pre-mapping.

	NX, NY float64 // Mouse: normalized coordinates in [0,1].

	Button int  // Button: 0=left, 1=middle, 2=right.
	Down   bool // Button: true=mousedown, false=mouseup.
}
