package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/proctor/internal/auth"
	"github.com/ent0n29/proctor/internal/store"
)

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	SampleBase64 string `json:"sample_base64"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	sample, err := decodeSample(req.SampleBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_sample", err.Error())
		return
	}
	student, err := s.registrar.Register(r.Context(), auth.RegistrationRequest{
		Name:   req.Name,
		Email:  req.Email,
		Sample: sample,
	})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, student)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListStudents(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if students == nil {
		students = []store.Student{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (s *Server) handleStudentSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	student, err := s.store.GetStudent(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	sessions, err := s.store.ListSessionsForStudent(r.Context(), student.ID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"student":  student,
		"sessions": sessions,
	})
}

func (s *Server) handleEnrollmentPrompt(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"prompt": s.registrar.EnrollmentPrompt()})
}

var errMissingSample = errors.New("sample_base64 is required")

// decodeSample accepts standard or URL-safe base64, with or without padding.
func decodeSample(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errMissingSample
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(raw); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("sample_base64 is not valid base64")
}
