// Package server exposes the control API, the live-update stream and
// the embedded dashboard over HTTP.
//
// Endpoints:
//   - GET    /                        dashboard page
//   - GET    /api/pins                monitored pin list with states
//   - POST   /api/pins/:pin           add a pin to monitoring
//   - DELETE /api/pins/:pin           remove a pin
//   - DELETE /api/pins                clear all pins
//   - GET    /api/pins/:pin/state     single pin state
//   - PUT    /api/pins/:pin/pull      set pull-resistor mode
//   - PUT    /api/pins/:pin/debounce  set debounce thresholds
//   - DELETE /api/pins/:pin/debounce  remove debouncing
//   - PUT    /api/port                persist a new port (restart required)
//   - GET    /api/status              service status, warnings, recent logs
//   - GET    /api/events              Server-Sent Events transition stream
//
// Every mutation writes through to the persisted config file before it
// touches the in-memory store, so the file and the store converge within
// a single request.
package server

import (
	"context"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/WIPtitle/gpio-monitor/config"
	"github.com/WIPtitle/gpio-monitor/internal/fanout"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE
	// write. A client that cannot accept a write within it is treated
	// as gone; without the deadline a blocked write would hold the
	// handler past shutdown.
	sseWriteTimeout = 5 * time.Second

	// sseHeartbeat is how often an SSE comment is sent to keep idle
	// connections from being reaped by intermediaries.
	sseHeartbeat = 15 * time.Second

	defaultTitle = "GPIO Monitor"

	titlePlaceholder = "{{.Title}}"
)

// Server handles HTTP requests for the control API and dashboard.
type Server struct {
	store      *store.Store
	hub        *fanout.Hub
	file       *config.File
	port       int
	assets     fs.FS
	title      string
	logger     *slog.Logger
	startedAt  time.Time
	httpServer *http.Server
}

// New creates a Server. The port is the one actually bound; the
// persisted config may drift from it until a restart.
func New(st *store.Store, hub *fanout.Hub, file *config.File, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     st,
		hub:       hub,
		file:      file,
		port:      port,
		assets:    assets,
		title:     title,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler builds the route table. Exposed for httptest-based tests.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/api/pins", s.handleListPins)
	router.POST("/api/pins/:pin", s.handleAddPin)
	router.DELETE("/api/pins", s.handleClearPins)
	router.DELETE("/api/pins/:pin", s.handleRemovePin)
	router.GET("/api/pins/:pin/state", s.handlePinState)
	router.PUT("/api/pins/:pin/pull", s.handleSetPull)
	router.PUT("/api/pins/:pin/debounce", s.handleSetDebounce)
	router.DELETE("/api/pins/:pin/debounce", s.handleRemoveDebounce)
	router.PUT("/api/port", s.handleSetPort)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/events", s.handleSSE)

	if s.assets != nil {
		router.GET("/", s.handleDashboard)
	}

	return router
}

// Start begins serving in a background goroutine.
//
// The listener is created first so port conflicts surface synchronously.
// Request contexts derive from ctx via BaseContext, so cancelling it
// both stops the server and unwinds long-lived SSE handlers.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the embedded dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleSSE streams transition events as Server-Sent Events.
//
// A fresh subscriber receives no backlog, only transitions confirmed
// after it connected. The stream ends when the client disconnects, the
// server shuts down, or the fan-out drops the subscriber for
// backpressure (its channel closes).
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(payload string) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprint(w, payload); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub.ID)

	// open the stream promptly so clients see headers before the first
	// transition arrives
	if err := writeAndFlush(": connected\n\n"); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// dropped by the hub (backpressure or shutdown)
				return
			}
			data, err := marshalEvent(ev)
			if err != nil {
				continue
			}
			if err := writeAndFlush(fmt.Sprintf("event: transition\ndata: %s\n\n", data)); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := writeAndFlush(": heartbeat\n\n"); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}
