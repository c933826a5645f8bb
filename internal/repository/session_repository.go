package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutoring-api/internal/models"
)

const sessionColumns = `id, student_id, student_name, tutor_id, tutor_name, subject, class_date, class_time, status,
       is_rescheduled, original_class_date, summary, created_at, updated_at`

// SessionRepository persists lesson sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	const query = `INSERT INTO sessions
	(id, student_id, student_name, tutor_id, tutor_name, subject, class_date, class_time, status, is_rescheduled, original_class_date, summary, created_at, updated_at)
	VALUES (:id, :student_id, :student_name, :tutor_id, :tutor_name, :subject, :class_date, :class_time, :status, :is_rescheduled, :original_class_date, :summary, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByID fetches a session by identifier. Legacy statuses are normalised.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	session.Normalize()
	return &session, nil
}

// List returns sessions matching the filter ordered by class date and time.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + sessionColumns + ` FROM sessions`)

	conditions := make([]string, 0, 5)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.ClassDate != "" {
		args = append(args, filter.ClassDate)
		conditions = append(conditions, fmt.Sprintf("class_date = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY class_date ASC, class_time ASC, created_at ASC")

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := range sessions {
		sessions[i].Normalize()
	}
	return sessions, nil
}

// MarkAttendance moves a session out of scheduled. The guard on status makes the
// check-and-write atomic; sql.ErrNoRows means nothing matched.
func (r *SessionRepository) MarkAttendance(ctx context.Context, update models.AttendanceUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now().UTC()
	}
	query := `UPDATE sessions SET status = :status, summary = :summary, updated_at = :updated_at
	WHERE id = :id AND student_id = :student_id AND status IN ('scheduled', 'pending')`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         update.SessionID,
		"student_id": update.StudentID,
		"status":     update.Status,
		"summary":    update.Summary,
		"updated_at": update.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return requireAffected(result, "mark attendance")
}

// Delete removes a session permanently.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(result, "delete session")
}
