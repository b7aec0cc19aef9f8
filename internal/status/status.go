// Package status serves the daemon's read-only HTTP surface.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/facron/facron/internal/history"
)

// HistoryReader lists recent launches. *history.Store implements it.
type HistoryReader interface {
	Recent(ctx context.Context, n int) ([]history.Launch, error)
}

// Deps are the handlers and stores the router exposes. A nil field removes
// the matching route.
type Deps struct {
	Health       http.HandlerFunc
	Metrics      http.Handler
	History      HistoryReader
	HistoryLimit int
	Logger       *slog.Logger
}

// defaultHistoryLimit applies when Deps.HistoryLimit is not positive.
const defaultHistoryLimit = 100

// NewRouter returns a configured chi.Router.
//
// Route layout:
//
//	GET /healthz   – daemon state as JSON
//	GET /metrics   – Prometheus text exposition
//	GET /history   – recent launches, newest first (?limit=N)
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = defaultHistoryLimit
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if deps.Health != nil {
		r.Get("/healthz", deps.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.History != nil {
		r.Get("/history", historyHandler(deps))
	}
	return r
}

func historyHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.HistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, deps.HistoryLimit)
		}

		launches, err := deps.History.Recent(r.Context(), limit)
		if err != nil {
			deps.Logger.Error("status: history query failed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if launches == nil {
			launches = []history.Launch{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"launches": launches})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Server runs the status router on a TCP address.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", slog.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: serve: %w", err)
	}
	return nil
}
