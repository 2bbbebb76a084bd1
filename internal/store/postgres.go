package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore persists students and sessions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies pending migrations and opens a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if err := Migrate(ctx, databaseURL, "up"); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const studentColumns = `id, name, email, voice_profile_ref, registered_at`

const sessionColumns = `id, student_id, student_name, start_time, end_time,
	head_movement_count, device_detection_count, cheating_percentage, trust_score, status`

func (s *PostgresStore) CreateStudent(ctx context.Context, in NewStudent) (Student, error) {
	st := Student{
		ID:              newID(),
		Name:            in.Name,
		Email:           in.Email,
		VoiceProfileRef: in.VoiceProfileRef,
		RegisteredAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO students (`+studentColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.Name, st.Email, st.VoiceProfileRef, st.RegisteredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Student{}, ErrDuplicateIdentity
		}
		return Student{}, fmt.Errorf("insert student: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) FindStudentByName(ctx context.Context, name string) (Student, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE lower(name) = lower($1) ORDER BY registered_at, id LIMIT 1`,
		name,
	)
	return scanStudent(row)
}

func (s *PostgresStore) GetStudent(ctx context.Context, id string) (Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

func (s *PostgresStore) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY registered_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	sess.ID = newID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID,
		sess.StudentID,
		sess.StudentName,
		sess.StartTime,
		sess.EndTime,
		sess.HeadMovementCount,
		sess.DeviceDetectionCount,
		sess.CheatingPercentage,
		sess.TrustScore,
		string(sess.Status),
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// UpdateSession applies every non-nil field in a single statement.
func (s *PostgresStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	var status *string
	if update.Status != nil {
		v := string(*update.Status)
		status = &v
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET
			end_time = COALESCE($2, end_time),
			head_movement_count = COALESCE($3, head_movement_count),
			device_detection_count = COALESCE($4, device_detection_count),
			cheating_percentage = COALESCE($5, cheating_percentage),
			trust_score = COALESCE($6, trust_score),
			status = COALESCE($7, status)
		 WHERE id = $1`,
		id,
		update.EndTime,
		update.HeadMovementCount,
		update.DeviceDetectionCount,
		update.CheatingPercentage,
		update.TrustScore,
		status,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSessionsForStudent(ctx context.Context, studentID string) ([]Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE student_id = $1 ORDER BY seq`,
		studentID,
	)
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY seq`)
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func scanStudent(row pgx.Row) (Student, error) {
	var st Student
	if err := row.Scan(&st.ID, &st.Name, &st.Email, &st.VoiceProfileRef, &st.RegisteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, fmt.Errorf("scan student row: %w", err)
	}
	return st, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess   Session
		status string
	)
	err := row.Scan(
		&sess.ID,
		&sess.StudentID,
		&sess.StudentName,
		&sess.StartTime,
		&sess.EndTime,
		&sess.HeadMovementCount,
		&sess.DeviceDetectionCount,
		&sess.CheatingPercentage,
		&sess.TrustScore,
		&status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("scan session row: %w", err)
	}
	sess.Status = Status(status)
	return sess, nil
}
