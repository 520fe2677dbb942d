// Package web exposes the reconcile operation over HTTP and provides the
// matching client.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/sync"
)

// SyncPath is the reconcile endpoint.
const SyncPath = "/api/cloud-sync"

const maxBodyBytes = 32 << 20

// Reconciler runs a reconcile for a tenant. *sync.Engine implements it.
type Reconciler interface {
	RunFor(ctx context.Context, userID string, mode sync.Mode, local domain.Snapshot) (domain.Snapshot, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	router *http.ServeMux
	engine Reconciler
	log    *slog.Logger
}

// NewServer creates and configures a new server. A nil logger means
// slog.Default().
func NewServer(engine Reconciler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: http.NewServeMux(),
		engine: engine,
		log:    logger.With("component", "web"),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	s.log.Info("Request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc(SyncPath, s.handleSync())
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

// handleSync runs a reconcile. Browsers call it cross-origin, so every
// answer carries a permissive CORS header and OPTIONS is answered directly.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		switch r.Method {
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodPost:
		default:
			s.fail(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}

		req, err := decodeRequest(r.Body)
		if err != nil {
			s.fail(w, http.StatusBadRequest, err)
			return
		}
		mode, err := sync.ParseMode(string(req.Method))
		if err != nil {
			s.fail(w, http.StatusBadRequest, err)
			return
		}

		var local domain.Snapshot
		if mode != sync.ModeOverwriteLocal {
			if err := req.Data.Validate(); err != nil {
				s.fail(w, http.StatusBadRequest, err)
				return
			}
			local = *req.Data
		}

		merged, err := s.engine.RunFor(r.Context(), req.UserID, mode, local)
		if err != nil {
			s.log.Error("Reconcile failed", "mode", mode, "error", err)
			s.fail(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, sync.Response{Success: true, Data: &merged})
	}
}

func decodeRequest(body io.Reader) (sync.Request, error) {
	var req sync.Request
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return req, err
	}
	if len(raw) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

// statusFor maps reconcile failures to response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, remote.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, sync.Response{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
