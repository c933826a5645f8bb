package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutoring-api/internal/models"
)

const userColumns = `id, custom_id, email, password_hash, name, role, timezone, contact_number, class_level, syllabus,
       permanent_class_link, emergency_contact, medium_of_communication, qualifications, hourly_rate,
       subjects, assignments, tutor_uids, last_login, created_at, updated_at`

// ErrDuplicateEmail is returned when the unique email constraint rejects a write.
var ErrDuplicateEmail = errors.New("email already in use")

// UserRepository provides database access for user profiles, including the student AssignmentGraph.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByIDs returns the users matching the identifiers, in no particular order.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	return users, nil
}

// ListStudentsByTutor returns the students whose derived tutor_uids set contains tutorID.
func (r *UserRepository) ListStudentsByTutor(ctx context.Context, tutorID string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND $2 = ANY(tutor_uids) ORDER BY name ASC`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, models.RoleStudent, tutorID); err != nil {
		return nil, fmt.Errorf("list students by tutor: %w", err)
	}
	return users, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdateTimezone stores the viewer timezone preference.
func (r *UserRepository) UpdateTimezone(ctx context.Context, id, timezone string, updatedAt time.Time) error {
	const query = `UPDATE users SET timezone = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, timezone, updatedAt)
	if err != nil {
		return fmt.Errorf("update timezone: %w", err)
	}
	return requireAffected(result, "update timezone")
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.TutorUID != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tutor_uids)", len(args)+1))
		args = append(args, filter.TutorUID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d OR LOWER(custom_id) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"email":      true,
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// ExistsByCustomID reports whether a custom id is already taken.
func (r *UserRepository) ExistsByCustomID(ctx context.Context, customID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE custom_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, customID); err != nil {
		return false, fmt.Errorf("check custom id: %w", err)
	}
	return exists, nil
}

// Create inserts a new user and returns the stored record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	normalizeArrays(user)

	const query = `INSERT INTO users (id, custom_id, email, password_hash, name, role, timezone, contact_number, class_level, syllabus,
	permanent_class_link, emergency_contact, medium_of_communication, qualifications, hourly_rate,
	subjects, assignments, tutor_uids, created_at, updated_at)
	VALUES (:id, :custom_id, :email, :password_hash, :name, :role, :timezone, :contact_number, :class_level, :syllabus,
	:permanent_class_link, :emergency_contact, :medium_of_communication, :qualifications, :hourly_rate,
	:subjects, :assignments, :tutor_uids, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err, "email") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update writes profile fields together with the AssignmentGraph and its derived columns.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	normalizeArrays(user)
	const query = `UPDATE users SET email = :email, name = :name, timezone = :timezone, contact_number = :contact_number,
	class_level = :class_level, syllabus = :syllabus, permanent_class_link = :permanent_class_link,
	emergency_contact = :emergency_contact, medium_of_communication = :medium_of_communication,
	qualifications = :qualifications, hourly_rate = :hourly_rate,
	subjects = :subjects, assignments = :assignments, tutor_uids = :tutor_uids, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		if isUniqueViolation(err, "email") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(result, "update user")
}

// ReplaceAssignments overwrites the AssignmentGraph and its derived columns in one statement.
func (r *UserRepository) ReplaceAssignments(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	normalizeArrays(user)
	const query = `UPDATE users SET assignments = :assignments, subjects = :subjects, tutor_uids = :tutor_uids, updated_at = :updated_at
	WHERE id = :id AND role = 'student'`
	result, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("replace assignments: %w", err)
	}
	return requireAffected(result, "replace assignments")
}

// DeleteWithSessions removes the user and every session booked for them as a student.
func (r *UserRepository) DeleteWithSessions(ctx context.Context, id string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var result sql.Result
	result, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	if err = requireAffected(result, "delete user"); err != nil {
		return 0, err
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE student_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check deleted sessions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete user: %w", err)
	}
	return removed, nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func normalizeArrays(user *models.User) {
	if user.Subjects == nil {
		user.Subjects = pq.StringArray{}
	}
	if user.TutorUIDs == nil {
		user.TutorUIDs = pq.StringArray{}
	}
	if user.Assignments == nil {
		user.Assignments = models.Assignments{}
	}
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, column)
	}
	return false
}
