package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/proctor/internal/report"
	"github.com/ent0n29/proctor/internal/store"
)

func filterFromQuery(r *http.Request) (report.Filter, bool) {
	q := r.URL.Query()
	f := report.Filter{
		StudentID: strings.TrimSpace(q.Get("student_id")),
		Status:    store.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Query:     strings.TrimSpace(q.Get("q")),
	}
	switch f.Status {
	case "", store.StatusActive, store.StatusCompleted, store.StatusFlagged:
		return f, true
	default:
		return f, false
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	f, ok := filterFromQuery(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be one of active, completed, flagged")
		return
	}
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": report.Apply(sessions, f)})
}

type summaryResponse struct {
	Summary  report.Summary  `json:"summary"`
	Sessions []sessionReport `json:"sessions"`
}

type sessionReport struct {
	store.Session
	DurationMinutes int `json:"duration_minutes"`
}

func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	f, ok := filterFromQuery(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be one of active, completed, flagged")
		return
	}
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	now := time.Now().UTC()
	matched := report.Apply(sessions, f)
	rows := make([]sessionReport, 0, len(matched))
	for _, sess := range matched {
		rows = append(rows, sessionReport{Session: sess, DurationMinutes: report.DurationMinutes(sess, now)})
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		Summary:  report.Summarize(matched, now),
		Sessions: rows,
	})
}
