package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type demoRecord struct {
	student NewStudent
	session Session
}

var demoRecords = []demoRecord{
	{
		student: NewStudent{Name: "John Doe", Email: "john@example.com", VoiceProfileRef: "voice_profile_1"},
		session: Session{
			StartTime:            time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC),
			HeadMovementCount:    15,
			DeviceDetectionCount: 2,
			CheatingPercentage:   25,
			TrustScore:           75,
			Status:               StatusCompleted,
		},
	},
	{
		student: NewStudent{Name: "Jane Smith", Email: "jane@example.com", VoiceProfileRef: "voice_profile_2"},
		session: Session{
			StartTime:          time.Date(2024, 1, 20, 14, 0, 0, 0, time.UTC),
			HeadMovementCount:  8,
			CheatingPercentage: 10,
			TrustScore:         90,
			Status:             StatusCompleted,
		},
	},
}

// SeedDemo loads two sample students, each with one finished 90 minute
// session. Students that already exist are skipped.
func SeedDemo(ctx context.Context, s Store) error {
	for _, rec := range demoRecords {
		st, err := s.CreateStudent(ctx, rec.student)
		if errors.Is(err, ErrDuplicateIdentity) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed student %q: %w", rec.student.Name, err)
		}
		sess := rec.session
		sess.StudentID = st.ID
		sess.StudentName = st.Name
		end := sess.StartTime.Add(90 * time.Minute)
		sess.EndTime = &end
		if _, err := s.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("seed session for %q: %w", st.Name, err)
		}
	}
	return nil
}
