package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robot-control/rsc/internal/auth"
	"github.com/robot-control/rsc/internal/channel"
	"github.com/robot-control/rsc/internal/protocol"
	"github.com/robot-control/rsc/internal/sequence"
	"github.com/robot-control/rsc/internal/telemetry"
	"github.com/robot-control/rsc/internal/transport"
)

var log = logging.MustGetLogger("api")

// Server hosts the HTTP surface over the controller core.
type Server struct {
	hub       *telemetry.Hub
	link      *transport.Manager
	queue     *channel.Queue
	sequencer *sequence.Controller
	guard     *auth.Middleware

	httpServer *http.Server
}

// NewServer wires the surface. guard may be disabled (empty secret).
func NewServer(hub *telemetry.Hub, link *transport.Manager, queue *channel.Queue, sequencer *sequence.Controller, guard *auth.Middleware) *Server {
	return &Server{
		hub:       hub,
		link:      link,
		queue:     queue,
		sequencer: sequencer,
		guard:     guard,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/log", s.handleLogStream)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/connect", s.guard.RequireAuth(s.handleConnect))
	mux.HandleFunc("POST /api/v1/disconnect", s.guard.RequireAuth(s.handleDisconnect))
	mux.HandleFunc("POST /api/v1/command", s.guard.RequireAuth(s.handleCommand))
	mux.HandleFunc("POST /api/v1/sequence/run", s.guard.RequireAuth(s.handleSequenceRun))
	mux.HandleFunc("POST /api/v1/sequence/abort", s.guard.RequireAuth(s.handleSequenceAbort))

	return mux
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	log.Infof("listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	step, total := s.sequencer.Step()
	WriteSuccess(w, map[string]interface{}{
		"connection":  string(s.link.State()),
		"sequence":    string(s.sequencer.State()),
		"lastOutcome": string(s.sequencer.LastOutcome()),
		"progress":    s.sequencer.Progress(),
		"step":        step,
		"stepTotal":   total,
	})
}

type connectRequest struct {
	Port string `json:"port"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Port == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "port is required")
		return
	}
	if err := s.link.Connect(req.Port); err != nil {
		switch {
		case errors.Is(err, transport.ErrAlreadyConnected):
			WriteError(w, http.StatusConflict, "ALREADY_CONNECTED", err.Error())
		case errors.Is(err, transport.ErrUnsupported):
			WriteError(w, http.StatusNotImplemented, "SERIAL_UNSUPPORTED", err.Error())
		default:
			WriteError(w, http.StatusBadGateway, "DEVICE_ERROR", err.Error())
		}
		return
	}
	WriteSuccess(w, map[string]string{"connection": string(s.link.State())})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.link.Disconnect()
	WriteSuccess(w, map[string]string{"connection": string(s.link.State())})
}

type commandRequest struct {
	Type  string `json:"type"`
	Code  string `json:"code,omitempty"`
	Text  string `json:"text,omitempty"`
	Port  int    `json:"port,omitempty"`
	Value int    `json:"value,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed body")
		return
	}

	var cmd protocol.Command
	switch req.Type {
	case "skill":
		cmd = protocol.Skill{Code: req.Code}
	case "raw":
		cmd = protocol.Raw{Text: req.Text}
	case "digital":
		cmd = protocol.DigitalWrite{Port: req.Port, Value: req.Value}
	default:
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("unknown command type %q", req.Type))
		return
	}

	if _, err := s.queue.Enqueue(cmd); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_COMMAND", err.Error())
		return
	}
	// Transmission results surface on the log stream, not here.
	WriteAccepted(w, map[string]string{"command": cmd.Label()})
}

func (s *Server) handleSequenceRun(w http.ResponseWriter, r *http.Request) {
	if err := s.sequencer.Start(); err != nil {
		WriteError(w, http.StatusConflict, "BUSY", "a sequence run is already active")
		return
	}
	WriteAccepted(w, map[string]string{"sequence": string(s.sequencer.State())})
}

func (s *Server) handleSequenceAbort(w http.ResponseWriter, r *http.Request) {
	s.sequencer.Abort()
	WriteSuccess(w, map[string]interface{}{
		"sequence":    string(s.sequencer.State()),
		"lastOutcome": string(s.sequencer.LastOutcome()),
	})
}

// handleLogStream bridges the hub onto an SSE stream. Recent entries are
// replayed first so a reconnecting client keeps context.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan telemetry.Entry, 100)
	id := s.hub.Subscribe(func(e telemetry.Entry) {
		select {
		case events <- e:
		default:
			// Slow client; drop rather than block the publisher.
		}
	})
	defer s.hub.Unsubscribe(id)

	for _, e := range s.hub.Recent() {
		writeSSE(w, e)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e telemetry.Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
}
