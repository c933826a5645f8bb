package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-api/internal/models"
)

// ProgressRepository stores per student and subject chapter ledgers.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Get returns the ledger for the pair or sql.ErrNoRows when none was created yet.
func (r *ProgressRepository) Get(ctx context.Context, studentID, subject string) (*models.ProgressLedger, error) {
	const query = `SELECT student_id, subject, completed_chapters, updated_at FROM progress WHERE student_id = $1 AND subject = $2`
	var ledger models.ProgressLedger
	if err := r.db.GetContext(ctx, &ledger, query, studentID, subject); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// ListByStudent returns every ledger of a student ordered by subject.
func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ProgressLedger, error) {
	const query = `SELECT student_id, subject, completed_chapters, updated_at FROM progress WHERE student_id = $1 ORDER BY subject ASC`
	var ledgers []models.ProgressLedger
	if err := r.db.SelectContext(ctx, &ledgers, query, studentID); err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return ledgers, nil
}

// AppendChapter creates the ledger when absent and appends label unless it is already recorded.
// It returns false without error when the label was already present.
func (r *ProgressRepository) AppendChapter(ctx context.Context, studentID, subject, label string, at time.Time) (bool, error) {
	const query = `INSERT INTO progress (student_id, subject, completed_chapters, updated_at)
	VALUES ($1, $2, ARRAY[$3::text], $4)
	ON CONFLICT (student_id, subject) DO UPDATE
	SET completed_chapters = array_append(progress.completed_chapters, $3::text), updated_at = $4
	WHERE NOT ($3::text = ANY(progress.completed_chapters))`
	result, err := r.db.ExecContext(ctx, query, studentID, subject, label, at)
	if err != nil {
		return false, fmt.Errorf("append chapter: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check append chapter rows: %w", err)
	}
	return rows > 0, nil
}

// RemoveChapter deletes the first exact match of label under a row lock.
// It returns false when the ledger or label does not exist.
func (r *ProgressRepository) RemoveChapter(ctx context.Context, studentID, subject, label string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin remove chapter: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var ledger models.ProgressLedger
	const selectQuery = `SELECT student_id, subject, completed_chapters, updated_at FROM progress WHERE student_id = $1 AND subject = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &ledger, selectQuery, studentID, subject); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("lock progress: %w", err)
	}
	if !ledger.RemoveFirst(label) {
		return false, nil
	}

	const updateQuery = `UPDATE progress SET completed_chapters = $3, updated_at = $4 WHERE student_id = $1 AND subject = $2`
	if _, err := tx.ExecContext(ctx, updateQuery, studentID, subject, ledger.CompletedChapters, at); err != nil {
		return false, fmt.Errorf("remove chapter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit remove chapter: %w", err)
	}
	committed = true
	return true, nil
}
