package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/proctor/internal/auth"
	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/logging"
	"github.com/ent0n29/proctor/internal/store"
)

type attemptResponse struct {
	AttemptID string     `json:"attempt_id"`
	State     auth.State `json:"state"`
}

// attemptErrorResponse keeps the error envelope but also returns the state the
// failure left the challenge in, so a client can render the denial.
type attemptErrorResponse struct {
	Error     string     `json:"error"`
	Code      string     `json:"code"`
	AttemptID string     `json:"attempt_id"`
	State     auth.State `json:"state"`
}

type grantResponse struct {
	Token     string        `json:"token"`
	Student   store.Student `json:"student"`
	GrantedAt int64         `json:"granted_at_ms"`
}

type identityRequest struct {
	Name string `json:"name"`
}

type responseRequest struct {
	SampleBase64 string `json:"sample_base64"`
}

func (s *Server) handleBeginAttempt(w http.ResponseWriter, _ *http.Request) {
	id, ch := s.attempts.Begin()
	respondJSON(w, http.StatusCreated, attemptResponse{AttemptID: id, State: ch.State()})
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.lookupAttempt(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, attemptResponse{AttemptID: id, State: ch.State()})
}

func (s *Server) handleSubmitIdentity(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.lookupAttempt(w, r)
	if !ok {
		return
	}
	var req identityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := ch.SubmitIdentity(r.Context(), req.Name); err != nil {
		s.respondAttemptError(w, r, id, ch, err)
		return
	}
	respondJSON(w, http.StatusOK, attemptResponse{AttemptID: id, State: ch.State()})
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.lookupAttempt(w, r)
	if !ok {
		return
	}
	var req responseRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	var sample []byte
	if strings.TrimSpace(req.SampleBase64) != "" {
		var err error
		if sample, err = decodeSample(req.SampleBase64); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_sample", err.Error())
			return
		}
	}

	ident := identity.New()
	grant, err := ch.SubmitResponse(r.Context(), ident, sample)
	if err != nil {
		s.respondAttemptError(w, r, id, ch, err)
		return
	}
	st := s.seats.Issue(ident)
	s.attempts.Finish(id)
	logging.L(r.Context()).Info("seat issued", "student_id", grant.Student.ID, "attempt_id", id)
	respondJSON(w, http.StatusOK, grantResponse{
		Token:     st.Token,
		Student:   grant.Student,
		GrantedAt: grant.GrantedAt.UnixMilli(),
	})
}

func (s *Server) handleNewPrompt(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.lookupAttempt(w, r)
	if !ok {
		return
	}
	if _, err := ch.NewPrompt(); err != nil {
		s.respondAttemptError(w, r, id, ch, err)
		return
	}
	respondJSON(w, http.StatusOK, attemptResponse{AttemptID: id, State: ch.State()})
}

func (s *Server) handleCancelAttempt(w http.ResponseWriter, r *http.Request) {
	id, ch, ok := s.lookupAttempt(w, r)
	if !ok {
		return
	}
	if err := ch.Cancel(); err != nil {
		s.respondAttemptError(w, r, id, ch, err)
		return
	}
	respondJSON(w, http.StatusOK, attemptResponse{AttemptID: id, State: ch.State()})
}

func (s *Server) lookupAttempt(w http.ResponseWriter, r *http.Request) (string, *auth.Challenge, bool) {
	id := chi.URLParam(r, "id")
	ch, err := s.attempts.Get(id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return "", nil, false
	}
	return id, ch, true
}

func (s *Server) respondAttemptError(w http.ResponseWriter, r *http.Request, id string, ch *auth.Challenge, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, status, attemptErrorResponse{
		Error:     err.Error(),
		Code:      code,
		AttemptID: id,
		State:     ch.State(),
	})
}
