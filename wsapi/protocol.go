// Package wsapi implements the per-client WebSocket control channel: one
// session per upgraded connection, a JSON message router dispatching on
// the `type` field, and the binary fallback sink plumbing.
package wsapi

import (
	"github.com/tidwall/gjson"
)

// inMessage is the subset of fields any inbound message might carry. Not
// every field applies to every type; the router pulls out only what a
// given type needs.
type inMessage struct {
	Type string

	// ping
	Timestamp float64

	// keydown/keyup
	Key string

	// mousemove
	X, Y float64

	// mousedown/mouseup
	Button int

	// spawn
	Command string

	// resize
	Width, Height int

	// webrtc_offer / webrtc_ice
	SDP       gjson.Result
	Candidate gjson.Result

	// config (see configFields below)
	Config configFields
}

// configFields mirrors the WS `config` message's optional subset. Each
// field's presence (not just its zero value) matters, so every field is a
// pointer populated only when gjson found the key — this is why gjson
// rather than encoding/json: a plain struct can't distinguish "bandwidth
// omitted" from "bandwidth: 0".
type configFields struct {
	Bandwidth          *int
	Quality            *int
	Framerate          *int
	VBR                *bool
	CPUEffort          *int
	CPUThreads         *int
	EnableDesktopMouse *bool
}

// parseMessage extracts an inMessage from one raw JSON WS frame using
// gjson, so optional fields (especially config's partial updates) can be
// told apart from zero values without a pointer-laden top-level struct.
func parseMessage(raw []byte) inMessage {
	root := gjson.ParseBytes(raw)
	var m inMessage
	m.Type = root.Get("type").String()
	m.Timestamp = root.Get("timestamp").Float()
	m.Key = root.Get("key").String()
	m.X = root.Get("x").Float()
	m.Y = root.Get("y").Float()
	m.Button = int(root.Get("button").Int())
	m.Command = root.Get("command").String()
	m.Width = int(root.Get("width").Int())
	m.Height = int(root.Get("height").Int())
	m.SDP = root.Get("sdp")
	m.Candidate = root.Get("candidate")

	cfg := root.Get("config")
	if !cfg.Exists() {
		// Some clients send config fields at the top level of a `config`
		// message rather than nested; accept either shape.
		cfg = root
	}
	m.Config = parseConfigFields(cfg)
	return m
}

func parseConfigFields(r gjson.Result) configFields {
	var c configFields
	if v := r.Get("bandwidth"); v.Exists() {
		n := int(v.Int())
		c.Bandwidth = &n
	}
	if v := r.Get("quality"); v.Exists() {
		n := int(v.Int())
		c.Quality = &n
	}
	if v := r.Get("framerate"); v.Exists() {
		n := int(v.Int())
		c.Framerate = &n
	}
	if v := r.Get("vbr"); v.Exists() {
		b := v.Bool()
		c.VBR = &b
	}
	if v := r.Get("cpu_effort"); v.Exists() {
		n := int(v.Int())
		c.CPUEffort = &n
	}
	if v := r.Get("cpu_threads"); v.Exists() {
		n := int(v.Int())
		c.CPUThreads = &n
	}
	if v := r.Get("enable_desktop_mouse"); v.Exists() {
		b := v.Bool()
		c.EnableDesktopMouse = &b
	}
	return c
}
