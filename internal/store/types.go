package store

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a monitored session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFlagged   Status = "flagged"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateIdentity = errors.New("a student with this name is already registered")

	// ErrUnavailable marks failures to reach the database at all.
	ErrUnavailable = errors.New("database unavailable")
)

// Student is a registered participant.
type Student struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	VoiceProfileRef string    `json:"voice_profile_ref"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// NewStudent carries the caller-supplied fields of a registration.
type NewStudent struct {
	Name            string
	Email           string
	VoiceProfileRef string
}

// Session is one monitored sitting. Counts and scores are only persisted at
// creation and finalization.
type Session struct {
	ID                   string     `json:"id"`
	StudentID            string     `json:"student_id"`
	StudentName          string     `json:"student_name"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	HeadMovementCount    int        `json:"head_movement_count"`
	DeviceDetectionCount int        `json:"device_detection_count"`
	CheatingPercentage   int        `json:"cheating_percentage"`
	TrustScore           int        `json:"trust_score"`
	Status               Status     `json:"status"`
}

// SessionUpdate lists the fields to overwrite. Nil fields are left untouched.
type SessionUpdate struct {
	EndTime              *time.Time
	HeadMovementCount    *int
	DeviceDetectionCount *int
	CheatingPercentage   *int
	TrustScore           *int
	Status               *Status
}

func (u SessionUpdate) apply(s *Session) {
	if u.EndTime != nil {
		t := *u.EndTime
		s.EndTime = &t
	}
	if u.HeadMovementCount != nil {
		s.HeadMovementCount = *u.HeadMovementCount
	}
	if u.DeviceDetectionCount != nil {
		s.DeviceDetectionCount = *u.DeviceDetectionCount
	}
	if u.CheatingPercentage != nil {
		s.CheatingPercentage = *u.CheatingPercentage
	}
	if u.TrustScore != nil {
		s.TrustScore = *u.TrustScore
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
}

// Store persists students and sessions. Every call is atomic from the
// caller's point of view.
type Store interface {
	CreateStudent(ctx context.Context, in NewStudent) (Student, error)
	// FindStudentByName matches case-insensitively; the earliest registration wins.
	FindStudentByName(ctx context.Context, name string) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	ListStudents(ctx context.Context) ([]Student, error)

	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error
	// ListSessionsForStudent returns sessions in insertion order.
	ListSessionsForStudent(ctx context.Context, studentID string) ([]Session, error)
	// ListSessions returns all sessions in insertion order.
	ListSessions(ctx context.Context) ([]Session, error)

	Close() error
}
