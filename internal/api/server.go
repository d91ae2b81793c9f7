// Package api serves the operator control surface over HTTP: queue and
// history views, control signals, direct play/replay/delete of individual
// items, a config reload trigger, and the health and metrics endpoints.
//
// The surface mirrors the hotkey bindings, so everything an operator can do
// from the terminal can also be done from a browser panel or a Stream Deck
// plugin pointed at this server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mizu36/maddieply/internal/clips"
	"github.com/Mizu36/maddieply/internal/control"
	"github.com/Mizu36/maddieply/internal/health"
	"github.com/Mizu36/maddieply/internal/observe"
	"github.com/Mizu36/maddieply/internal/queue"
	"github.com/Mizu36/maddieply/internal/scheduler"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:8440"

// Player is the scheduler surface the API drives directly. Index-based play
// and replay bypass the signal router because they carry an argument.
type Player interface {
	State() scheduler.State
	Paused() bool
	PlayByIndex(ctx context.Context, i int) error
	ReplayByIndex(ctx context.Context, i int) error
}

// Config wires the server to the rest of the application.
type Config struct {
	// Addr is the listen address. Default [DefaultAddr].
	Addr string

	// Queue is the playback queue backing the /api/queue views.
	Queue *queue.EventQueue

	// Player handles index-based play and replay.
	Player Player

	// Send forwards a parsed control signal, normally Router.Send.
	Send func(control.Signal) bool

	// Clips deletes backing audio files for removed items. Optional; when nil
	// removed items leave their clip on disk until the next prune.
	Clips *clips.Store

	// Reload re-reads the prompt and reaction configuration. Optional.
	Reload func(ctx context.Context) error

	// Metrics backs the request-duration middleware and the signal counter.
	Metrics *observe.Metrics

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler
}

// Server is the HTTP control surface. Create with [New], start with
// [Server.Run].
type Server struct {
	cfg     Config
	baseCtx context.Context
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Queue == nil {
		return nil, errors.New("api: queue is required")
	}
	if cfg.Player == nil {
		return nil, errors.New("api: player is required")
	}
	if cfg.Send == nil {
		return nil, errors.New("api: send func is required")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("api: metrics are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, baseCtx: context.Background()}, nil
}

// Routes returns the full handler tree, middleware included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("GET /api/played", s.handlePlayed)
	mux.HandleFunc("POST /api/signal", s.handleSignal)
	mux.HandleFunc("POST /api/queue/{index}/play", s.handlePlayByIndex)
	mux.HandleFunc("POST /api/played/{index}/replay", s.handleReplayByIndex)
	mux.HandleFunc("DELETE /api/queue/{index}", s.handleDelete)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.cfg.Metrics)(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests. The
// playback goroutines started by play and replay handlers inherit ctx rather
// than the request context, so closing a browser tab does not skip a clip.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("control surface listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ─── Views ───────────────────────────────────────────────────────────────────

// itemJSON is the wire shape of one queue or history entry. Audio paths stay
// server-side.
type itemJSON struct {
	Index      int       `json:"index"`
	Lane       string    `json:"lane"`
	User       string    `json:"user"`
	Category   string    `json:"category"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type stateJSON struct {
	State   string `json:"state"`
	Paused  bool   `json:"paused"`
	Playing bool   `json:"playing"`
	Pending int    `json:"pending"`
	Played  int    `json:"played"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateJSON{
		State:   s.cfg.Player.State().String(),
		Paused:  s.cfg.Player.Paused(),
		Playing: s.cfg.Queue.IsPlaying(),
		Pending: s.cfg.Queue.Len(),
		Played:  len(s.cfg.Queue.Played()),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toItemJSON(s.cfg.Queue.Pending()))
}

func (s *Server) handlePlayed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toItemJSON(s.cfg.Queue.Played()))
}

func toItemJSON(items []queue.Item) []itemJSON {
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = itemJSON{
			Index:      i,
			Lane:       it.Kind.String(),
			User:       it.SourceUser,
			Category:   it.Category,
			EnqueuedAt: it.EnqueuedAt,
		}
	}
	return out
}

// ─── Actions ─────────────────────────────────────────────────────────────────

type signalRequest struct {
	Signal string `json:"signal"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sig, ok := control.ParseSignal(req.Signal)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown signal "+strconv.Quote(req.Signal))
		return
	}
	s.cfg.Metrics.RecordSignal(r.Context(), sig.String())
	if !s.cfg.Send(sig) {
		writeError(w, http.StatusServiceUnavailable, "signal buffer full")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePlayByIndex(w http.ResponseWriter, r *http.Request) {
	i, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if s.cfg.Queue.IsPlaying() {
		writeError(w, http.StatusConflict, "playback already in progress")
		return
	}
	if i < 0 || i >= s.cfg.Queue.Len() {
		writeError(w, http.StatusNotFound, "no pending item at index "+strconv.Itoa(i))
		return
	}
	go s.playLogged("play", func(ctx context.Context) error {
		return s.cfg.Player.PlayByIndex(ctx, i)
	})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReplayByIndex(w http.ResponseWriter, r *http.Request) {
	i, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if s.cfg.Queue.IsPlaying() {
		writeError(w, http.StatusConflict, "playback already in progress")
		return
	}
	if i < 0 || i >= len(s.cfg.Queue.Played()) {
		writeError(w, http.StatusNotFound, "no history entry at index "+strconv.Itoa(i))
		return
	}
	go s.playLogged("replay", func(ctx context.Context) error {
		return s.cfg.Player.ReplayByIndex(ctx, i)
	})
	w.WriteHeader(http.StatusAccepted)
}

// playLogged runs a playback action on the server's base context. The action
// outlives the HTTP request that triggered it.
func (s *Server) playLogged(action string, fn func(context.Context) error) {
	err := fn(s.baseCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("control surface playback failed", "action", action, "err", err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	i, ok := pathIndex(w, r)
	if !ok {
		return
	}
	fromPlayed := r.URL.Query().Get("history") == "true"
	ref, ok := s.cfg.Queue.RemoveByIndex(i, fromPlayed)
	if !ok {
		writeError(w, http.StatusNotFound, "no item at index "+strconv.Itoa(i))
		return
	}
	if s.cfg.Clips != nil {
		if err := s.cfg.Clips.Remove(ref); err != nil {
			slog.Warn("failed to delete clip for removed item", "audio", ref, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Reload == nil {
		writeError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}
	if err := s.cfg.Reload(r.Context()); err != nil {
		slog.Error("config reload failed", "err", err)
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return i, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
