package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/formgate/internal/database"
	"github.com/charlesng35/formgate/internal/models"
)

// SubmissionStore persists accepted submissions.
type SubmissionStore struct {
	db *gorm.DB
}

// NewSubmissionStore constructs a SubmissionStore backed by db.
func NewSubmissionStore(db *gorm.DB) (*SubmissionStore, error) {
	if db == nil {
		return nil, errors.New("submission store: db is required")
	}
	return &SubmissionStore{db: db}, nil
}

// EnsureSchema creates the submissions table and its unique email index if absent.
func (s *SubmissionStore) EnsureSchema(ctx context.Context) error {
	if err := database.AutoMigrate(s.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("submission store: ensure schema: %w", err)
	}
	return nil
}

// Insert stores rec, filling in its ID and timestamp.
func (s *SubmissionStore) Insert(ctx context.Context, rec *models.Submission) error {
	if rec == nil {
		return errors.New("submission store: record is required")
	}
	rec.ID = 0
	rec.Normalise()

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translateInsertError(err)
	}
	return nil
}

// InsertAndCommit stores rec inside a transaction and calls beforeCommit before
// committing. When beforeCommit fails the insert is rolled back and its error is
// returned. A failed commit is reported with ErrCommitFailed so callers can tell
// that beforeCommit's side effects already happened.
func (s *SubmissionStore) InsertAndCommit(ctx context.Context, rec *models.Submission, beforeCommit func(context.Context) error) error {
	if rec == nil {
		return errors.New("submission store: record is required")
	}
	rec.ID = 0
	rec.Normalise()

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("submission store: begin: %w", tx.Error)
	}

	done := false
	defer func() {
		if !done {
			tx.Rollback()
		}
	}()

	if err := tx.Create(rec).Error; err != nil {
		return translateInsertError(err)
	}

	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}

	done = true
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return nil
}

// SelectAll streams every record in ID order to fn. Iteration stops at the first
// error returned by fn. fn must not call back into the store.
func (s *SubmissionStore) SelectAll(ctx context.Context, fn func(*models.Submission) error) error {
	rows, err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Order("id ASC").
		Rows()
	if err != nil {
		return fmt.Errorf("submission store: select: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.Submission
		if err := s.db.ScanRows(rows, &rec); err != nil {
			return fmt.Errorf("submission store: scan: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("submission store: iterate: %w", err)
	}
	return nil
}

// List returns every record in ID order.
func (s *SubmissionStore) List(ctx context.Context) ([]models.Submission, error) {
	var out []models.Submission
	err := s.SelectAll(ctx, func(rec *models.Submission) error {
		out = append(out, *rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SubmissionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Submission{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("submission store: count: %w", err)
	}
	return count, nil
}

// ExistsByEmail reports whether a record with the normalised email exists.
func (s *SubmissionStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("email = ?", email).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("submission store: lookup email: %w", err)
	}
	return count > 0, nil
}

// Ping checks that the database is reachable.
func (s *SubmissionStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translateInsertError(err error) error {
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateSubmission, err)
	}
	return fmt.Errorf("submission store: insert: %w", err)
}
