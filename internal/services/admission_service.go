package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/formgate/internal/allowlist"
	"github.com/charlesng35/formgate/internal/locks"
	"github.com/charlesng35/formgate/internal/models"
	apperrors "github.com/charlesng35/formgate/pkg/errors"
	"github.com/charlesng35/formgate/pkg/logger"
	"github.com/charlesng35/formgate/pkg/metrics"
	"github.com/charlesng35/formgate/pkg/validator"
)

// Outcome is the result class of an admission attempt.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeMissingFields   Outcome = "missing_fields"
	OutcomeUnauthorized    Outcome = "unauthorized"
	OutcomeConflict        Outcome = "conflict"
	OutcomeInternalFailure Outcome = "internal_failure"
)

// Reason refines OutcomeUnauthorized for logs. Clients always see the same error.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNotAuthorized Reason = "not_authorized"
	ReasonAlreadyUsed   Reason = "already_used"
)

// SubmissionInput is a candidate submission.
type SubmissionInput struct {
	Name  string `json:"name" validate:"required"`
	Age   int    `json:"age" validate:"required"`
	Email string `json:"email" validate:"required"`
}

// Admission describes how an attempt was resolved. Submission is set only when the
// attempt was accepted.
type Admission struct {
	Outcome    Outcome
	Reason     Reason
	Submission *models.Submission
}

// Allowlist loads and replaces the set of unused tokens.
type Allowlist interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, tokens []string) error
}

// SubmissionRecorder is the part of the record store used by admissions.
type SubmissionRecorder interface {
	InsertAndCommit(ctx context.Context, rec *models.Submission, beforeCommit func(context.Context) error) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// AdmissionOption customises AdmissionService behaviour.
type AdmissionOption func(*AdmissionService)

// WithAdmissionClock injects a custom clock primarily for testing.
func WithAdmissionClock(clock func() time.Time) AdmissionOption {
	return func(s *AdmissionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AdmissionService consumes allowlist tokens and records the submissions they admit.
type AdmissionService struct {
	allowlist Allowlist
	records   SubmissionRecorder
	locker    locks.Locker
	now       func() time.Time
	log       *zap.Logger
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(list Allowlist, records SubmissionRecorder, locker locks.Locker, opts ...AdmissionOption) (*AdmissionService, error) {
	if list == nil {
		return nil, errors.New("admission service: allowlist is required")
	}
	if records == nil {
		return nil, errors.New("admission service: record store is required")
	}
	if locker == nil {
		return nil, errors.New("admission service: locker is required")
	}

	svc := &AdmissionService{
		allowlist: list,
		records:   records,
		locker:    locker,
		now:       time.Now,
		log:       logger.WithModule("admission"),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Admit runs the admission protocol for input. The returned Admission is never nil.
// For every outcome other than OutcomeAccepted the error is an *apperrors.AppError.
//
// The record is inserted first and the shortened allowlist is saved before the record
// transaction commits, so a rejected insert never consumes a token and a failed save
// never leaves a record behind.
func (s *AdmissionService) Admit(ctx context.Context, input SubmissionInput) (*Admission, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)

	if err := validator.ValidateStruct(input); err != nil {
		s.log.Debug("submission rejected: missing fields", zap.Error(err))
		return s.finish(OutcomeMissingFields, ReasonNone, nil), apperrors.ErrMissingFields.WithInternal(err)
	}

	token := allowlist.Normalize(input.Email)
	log := s.log.With(zap.String("email", token))

	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, locks.AllowlistKey)
	metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		log.Error("acquire allowlist lock", zap.Error(err))
		return s.finish(OutcomeInternalFailure, ReasonNone, nil), apperrors.ErrInternalServer.WithInternal(err)
	}
	defer release()

	tokens, err := s.allowlist.Load(ctx)
	if err != nil {
		log.Error("load allowlist", zap.Error(err))
		return s.finish(OutcomeInternalFailure, ReasonNone, nil), apperrors.ErrInternalServer.WithInternal(err)
	}

	remaining, found := allowlist.Remove(tokens, token)
	if !found {
		reason := s.absenceReason(ctx, token)
		log.Warn("submission rejected: email not on allowlist", zap.String("reason", string(reason)))
		return s.finish(OutcomeUnauthorized, reason, nil), apperrors.ErrNotAuthorized
	}

	rec := &models.Submission{
		Name:      input.Name,
		Age:       input.Age,
		Email:     token,
		Timestamp: s.now().UTC(),
	}

	saved := false
	err = s.records.InsertAndCommit(ctx, rec, func(ctx context.Context) error {
		if err := s.allowlist.Save(ctx, remaining); err != nil {
			return fmt.Errorf("save allowlist: %w", err)
		}
		saved = true
		return nil
	})

	switch {
	case err == nil:
		metrics.AllowlistTokens.Set(float64(len(remaining)))
		log.Info("submission accepted", zap.Uint("id", rec.ID))
		return s.finish(OutcomeAccepted, ReasonNone, rec), nil
	case errors.Is(err, ErrDuplicateSubmission):
		log.Warn("submission conflict: record already exists, allowlist left unchanged", zap.Error(err))
		return s.finish(OutcomeConflict, ReasonNone, nil), apperrors.ErrSubmissionConflict.WithInternal(err)
	case saved:
		// token consumed without a record; re-provision it with `formgatectl allowlist add`
		metrics.AllowlistTokens.Set(float64(len(remaining)))
		log.Error("anomaly: allowlist token consumed without a stored record", zap.Error(err))
		return s.finish(OutcomeInternalFailure, ReasonNone, nil), apperrors.ErrInternalServer.WithInternal(err)
	default:
		log.Error("submission failed, no store was changed", zap.Error(err))
		return s.finish(OutcomeInternalFailure, ReasonNone, nil), apperrors.ErrInternalServer.WithInternal(err)
	}
}

func (s *AdmissionService) absenceReason(ctx context.Context, token string) Reason {
	exists, err := s.records.ExistsByEmail(ctx, token)
	if err != nil {
		s.log.Debug("lookup existing submission", zap.Error(err))
		return ReasonNotAuthorized
	}
	if exists {
		return ReasonAlreadyUsed
	}
	return ReasonNotAuthorized
}

func (s *AdmissionService) finish(outcome Outcome, reason Reason, rec *models.Submission) *Admission {
	metrics.Admissions.WithLabelValues(string(outcome)).Inc()
	return &Admission{Outcome: outcome, Reason: reason, Submission: rec}
}
