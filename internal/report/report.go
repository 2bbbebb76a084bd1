// Package report aggregates stored sessions for dashboards and exports.
package report

import (
	"math"
	"strings"
	"time"

	"github.com/ent0n29/proctor/internal/store"
)

// Filter narrows a session list. Empty fields match everything.
type Filter struct {
	StudentID string
	Status    store.Status
	// Query matches a case-insensitive substring of the student name.
	Query string
}

func (f Filter) Match(s store.Session) bool {
	if f.StudentID != "" && s.StudentID != f.StudentID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" &&
		!strings.Contains(strings.ToLower(s.StudentName), strings.ToLower(q)) {
		return false
	}
	return true
}

// Apply returns the sessions matching f, preserving order.
func Apply(sessions []store.Session, f Filter) []store.Session {
	out := make([]store.Session, 0, len(sessions))
	for _, s := range sessions {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// Distribution buckets sessions by trust score.
type Distribution struct {
	Excellent int `json:"excellent"` // >= 90
	Good      int `json:"good"`      // 70-89
	Fair      int `json:"fair"`      // 50-69
	Poor      int `json:"poor"`      // < 50
}

type Summary struct {
	TotalSessions         int          `json:"total_sessions"`
	ActiveSessions        int          `json:"active_sessions"`
	CompletedSessions     int          `json:"completed_sessions"`
	FlaggedSessions       int          `json:"flagged_sessions"`
	AverageTrustScore     int          `json:"average_trust_score"`
	TotalHeadMovements    int          `json:"total_head_movements"`
	TotalDeviceDetections int          `json:"total_device_detections"`
	Distribution          Distribution `json:"distribution"`
	GeneratedAt           time.Time    `json:"generated_at"`
}

// Summarize computes totals over sessions. The average trust score is
// rounded half up and is 0 for an empty list.
func Summarize(sessions []store.Session, now time.Time) Summary {
	sum := Summary{TotalSessions: len(sessions), GeneratedAt: now}
	trustTotal := 0
	for _, s := range sessions {
		switch s.Status {
		case store.StatusActive:
			sum.ActiveSessions++
		case store.StatusCompleted:
			sum.CompletedSessions++
		case store.StatusFlagged:
			sum.FlaggedSessions++
		}
		trustTotal += s.TrustScore
		sum.TotalHeadMovements += s.HeadMovementCount
		sum.TotalDeviceDetections += s.DeviceDetectionCount

		switch {
		case s.TrustScore >= 90:
			sum.Distribution.Excellent++
		case s.TrustScore >= 70:
			sum.Distribution.Good++
		case s.TrustScore >= 50:
			sum.Distribution.Fair++
		default:
			sum.Distribution.Poor++
		}
	}
	if len(sessions) > 0 {
		sum.AverageTrustScore = int(math.Floor(float64(trustTotal)/float64(len(sessions)) + 0.5))
	}
	return sum
}

// DurationMinutes is the rounded length of a finalized session, or of an
// active one up to now.
func DurationMinutes(s store.Session, now time.Time) int {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	d := end.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return int(math.Floor(d.Minutes() + 0.5))
}
