package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"griddojo/internal/prefetch"
	"griddojo/internal/session"
	"griddojo/internal/telemetry"
	"griddojo/internal/ui"
)

const (
	DefaultAddr = "127.0.0.1:17321"

	writeWait    = 2 * time.Second
	clientBuffer = 16
)

// Server exposes the live session and prefetch state over HTTP for local
// debugging and automation. It is only started in dev mode.
type Server struct {
	addr     string
	engine   Engine
	cache    Cache
	ctrl     ui.Controller
	logger   telemetry.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[chan []byte]struct{}
	srv         *http.Server
	done        chan struct{}
	closed      bool
	unsubscribe func()
}

func NewServer(addr string, engine Engine, cache Cache, ctrl ui.Controller, logger telemetry.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:    addr,
		engine:  engine,
		cache:   cache,
		ctrl:    ctrl,
		logger:  telemetry.OrDiscard(logger),
		clients: map[chan []byte]struct{}{},
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     localOrigin,
		},
	}
	s.unsubscribe = engine.Subscribe(s.onSnapshot)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/__dev/ready", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/__dev/state", s.handleState)
	mux.HandleFunc("/__dev/quality", s.handleQuality)
	mux.HandleFunc("/__dev/action", s.handleAction)
	mux.HandleFunc("/__dev/stream", s.handleStream)
	return mux
}

// Start listens on the configured address and serves in the background. It
// returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev_http.serve_failed", map[string]any{"error": err.Error(), "addr": s.addr})
		}
	}()
	s.logger.Info("dev_http.start", map[string]any{"addr": ln.Addr().String()})
	return ln.Addr().String(), nil
}

// Close stops streaming clients, drops the engine subscription and shuts the
// listener down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	srv := s.srv
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.currentView())
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Quality string `json:"quality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	q, err := prefetch.ParseQuality(req.Quality)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.logger.Info("dev.quality.request", map[string]any{"requested": req.Quality, "quality": string(q)})
	s.cache.SetNetworkQuality(q)
	stats := s.cache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"quality":     string(stats.Quality),
		"concurrency": stats.Concurrency,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.ctrl == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "no controller"})
		return
	}
	var req struct {
		Action string `json:"action"`
		Cell   int    `json:"cell"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "start":
		s.ctrl.OnStart()
	case "toggle":
		s.ctrl.OnToggle(req.Cell)
	case "submit":
		s.ctrl.OnSubmit()
	case "next":
		s.ctrl.OnNext()
	case "retry":
		s.ctrl.OnRetry()
	case "reset":
		s.ctrl.OnReset()
	case "mode":
		s.ctrl.OnCycleMode()
	case "set":
		s.ctrl.OnCycleSet()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "unknown action " + req.Action})
		return
	}
	s.logger.Debug("dev.action", map[string]any{"action": req.Action, "cell": req.Cell})
	writeJSON(w, http.StatusOK, s.currentView())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("dev.stream.upgrade_failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	ch := make(chan []byte, clientBuffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	if data, err := json.Marshal(s.currentView()); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(writeWait))
			return
		case data := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (s *Server) onSnapshot(snap session.Snapshot) {
	data, err := json.Marshal(viewOf(snap, s.cache.Stats()))
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			// Slow client; it picks up the next snapshot.
		}
	}
}

func (s *Server) currentView() StateView {
	return viewOf(s.engine.Snapshot(), s.cache.Stats())
}

func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.Contains(origin, "://127.0.0.1") || strings.Contains(origin, "://localhost")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
