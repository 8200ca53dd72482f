// Package httpapi is the single HTTP front: one listener that upgrades
// WebSocket connections on any path and otherwise serves static files from
// a fixed public/ directory, with a /healthz readiness endpoint.
package httpapi

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lumacast/lumacast/wsapi"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Single-tenant desktop session with no auth; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server owns the net/http handler wiring. NewMux returns a ready-to-serve
// http.Handler; callers are responsible for http.Serve / http.ListenAndServe.
type Server struct {
	PublicDir string
	Deps      wsapi.Deps
	Status    func() StatusReport
	Log       zerolog.Logger
}

// StatusReport is the /healthz payload.
type StatusReport struct {
	EncoderState string `json:"encoder_state"`
	Epoch        uint32 `json:"epoch"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Clients      int    `json:"clients"`
}

// NewMux builds the single handler passed to http.Serve. A WebSocket
// upgrade (any path) goes to wsapi; GET /healthz returns the status report;
// any other GET or HEAD falls through to the static file handler, and every
// other method gets 404.
func (s *Server) NewMux() http.Handler {
	fileHandler := s.staticHandler()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.handleUpgrade(w, r)
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/healthz" {
			s.handleHealthz(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		withCrossOriginIsolation(w)
		fileHandler.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}
	sess := wsapi.NewSession(conn, r, s.Deps)
	go sess.Run()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var report StatusReport
	if s.Status != nil {
		report = s.Status()
	}
	writeJSON(w, report)
}

// withCrossOriginIsolation sends the headers that let the viewer page use
// SharedArrayBuffer-class APIs.
func withCrossOriginIsolation(w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
}

// staticHandler serves files under PublicDir, mapping "/" to viewer.html
// and rejecting any path that would resolve outside PublicDir.
func (s *Server) staticHandler() http.Handler {
	root := filepath.Clean(s.PublicDir)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqPath := r.URL.Path
		if reqPath == "/" {
			reqPath = "/viewer.html"
		}
		cleaned := filepath.Clean(reqPath)
		if cleaned == "." || strings.HasPrefix(cleaned, "..") {
			http.NotFound(w, r)
			return
		}
		full := filepath.Join(root, cleaned)
		if !strings.HasPrefix(full, root+string(filepath.Separator)) && full != root {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	})
}
