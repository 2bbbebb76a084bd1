package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/proctor/internal/auth"
	"github.com/ent0n29/proctor/internal/config"
	"github.com/ent0n29/proctor/internal/observability"
	"github.com/ent0n29/proctor/internal/seat"
	"github.com/ent0n29/proctor/internal/session"
	"github.com/ent0n29/proctor/internal/store"
)

type Deps struct {
	Store     store.Store
	Registrar *auth.Registrar
	Attempts  *auth.Attempts
	Seats     *seat.Registry
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	cfg       config.Config
	store     store.Store
	registrar *auth.Registrar
	attempts  *auth.Attempts
	seats     *seat.Registry
	metrics   *observability.Metrics
	log       *slog.Logger
	ready     func(ctx context.Context) error
	limiter   *RateLimiter
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		store:     deps.Store,
		registrar: deps.Registrar,
		attempts:  deps.Attempts,
		seats:     deps.Seats,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		ready:     deps.Ready,
		limiter:   NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(s.limiter.Middleware("register")).Post("/students", s.handleRegister)
		r.Get("/students", s.handleListStudents)
		r.Get("/students/{id}/sessions", s.handleStudentSessions)
		r.Get("/enrollment/prompt", s.handleEnrollmentPrompt)

		r.Route("/auth/attempts", func(r chi.Router) {
			r.Use(s.limiter.Middleware("auth"))
			r.Post("/", s.handleBeginAttempt)
			r.Get("/{id}", s.handleGetAttempt)
			r.Post("/{id}/identity", s.handleSubmitIdentity)
			r.Post("/{id}/response", s.handleSubmitResponse)
			r.Post("/{id}/prompt", s.handleNewPrompt)
			r.Post("/{id}/cancel", s.handleCancelAttempt)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSeat)
			r.Post("/monitoring/start", s.handleStartMonitoring)
			r.Post("/monitoring/stop", s.handleStopMonitoring)
			r.Get("/monitoring", s.handleGetMonitoring)
			r.Get("/monitoring/ws", s.handleMonitoringWS)
			r.Post("/logout", s.handleLogout)
		})

		r.Get("/sessions", s.handleListSessions)
		r.Get("/reports/summary", s.handleReportSummary)
	})

	return r
}

// Close releases background resources owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_seats": s.seats.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.seats.ActiveCount(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 8<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondDomainError maps a domain error to its HTTP status and code.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	respondError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrIdentityNotFound):
		return http.StatusNotFound, "identity_not_found"
	case errors.Is(err, auth.ErrChallengeMismatch):
		return http.StatusUnauthorized, "challenge_mismatch"
	case errors.Is(err, auth.ErrInvalidPhase):
		return http.StatusConflict, "invalid_phase"
	case errors.Is(err, auth.ErrAttemptNotFound):
		return http.StatusNotFound, "attempt_not_found"
	case errors.Is(err, auth.ErrInvalidRegistration), errors.Is(err, auth.ErrSampleTooShort):
		return http.StatusUnprocessableEntity, "invalid_registration"
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict, "session_conflict"
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, seat.ErrNotFound):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, store.ErrDuplicateIdentity):
		return http.StatusConflict, "duplicate_identity"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
