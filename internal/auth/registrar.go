package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ent0n29/proctor/internal/audio"
	"github.com/ent0n29/proctor/internal/store"
	"github.com/ent0n29/proctor/internal/traces"
)

// MinEnrollmentDuration is the shortest voice sample accepted at enrollment.
const MinEnrollmentDuration = time.Second

var (
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrSampleTooShort      = errors.New("enrollment sample too short")
)

var registrationValidate = validator.New()

// RegistrationRequest enrolls a new student with a recorded voice sample.
type RegistrationRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=120"`
	Email  string `json:"email" validate:"required,email,max=255"`
	Sample []byte `json:"-" validate:"required"`
}

// StudentCreator is the store capability a Registrar needs.
type StudentCreator interface {
	CreateStudent(ctx context.Context, in store.NewStudent) (store.Student, error)
}

type Registrar struct {
	creator StudentCreator
	prompts *PromptPool
	log     *slog.Logger
}

func NewRegistrar(creator StudentCreator, prompts *PromptPool, logger *slog.Logger) *Registrar {
	if prompts == nil {
		prompts = NewPromptPool(RegistrationPrompts, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{creator: creator, prompts: prompts, log: logger}
}

// EnrollmentPrompt returns the sentence to read while recording a sample.
func (r *Registrar) EnrollmentPrompt() string {
	return r.prompts.Draw()
}

// Register validates req, derives the voice profile reference from the
// sample and creates the student. Duplicate names fail with
// store.ErrDuplicateIdentity.
func (r *Registrar) Register(ctx context.Context, req RegistrationRequest) (store.Student, error) {
	ctx, span := traces.StartSpan(ctx, "auth.register")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := registrationValidate.Struct(req); err != nil {
		traces.Fail(span, err)
		return store.Student{}, fmt.Errorf("%w: %s", ErrInvalidRegistration, describeValidation(err))
	}

	sample, err := audio.ParseWAVPCM16LE(req.Sample)
	if err != nil {
		traces.Fail(span, err)
		return store.Student{}, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if sample.Duration() < MinEnrollmentDuration {
		traces.Fail(span, ErrSampleTooShort)
		return store.Student{}, ErrSampleTooShort
	}

	student, err := r.creator.CreateStudent(ctx, store.NewStudent{
		Name:            req.Name,
		Email:           req.Email,
		VoiceProfileRef: "voice_" + sample.Fingerprint(),
	})
	if err != nil {
		traces.Fail(span, err)
		return store.Student{}, fmt.Errorf("create student: %w", err)
	}
	span.SetAttributes(traces.StudentID(student.ID))
	r.log.Info("student registered", "student_id", student.ID, "sample_ms", sample.Duration().Milliseconds())
	return student, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
