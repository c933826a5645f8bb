package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/internal/repository"
	"github.com/noah-isme/tutoring-api/pkg/civiltime"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

const (
	customIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	customIDLength   = 8
	customIDAttempts = 5
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByCustomID(ctx context.Context, customID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateTimezone(ctx context.Context, id, timezone string, updatedAt time.Time) error
	DeleteWithSessions(ctx context.Context, id string) (int64, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type assignmentNormalizer interface {
	Normalize(ctx context.Context, assignments models.Assignments) (models.Assignments, error)
}

// UserService performs the privileged account writes and profile reads.
type UserService struct {
	repo        userRepository
	assignments assignmentNormalizer
	notifier    changeNotifier
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, assignments assignmentNormalizer, notifier changeNotifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterValidation("iana_zone", func(fl validator.FieldLevel) bool {
		return civiltime.ValidZone(fl.Field().String())
	})
	validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).Valid()
	})
	return &UserService{repo: repo, assignments: assignments, notifier: notifier, cache: cache, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateTimezone stores the caller's display timezone. An empty value resets to the reference zone.
func (s *UserService) UpdateTimezone(ctx context.Context, userID string, req models.UpdateTimezoneRequest) (*models.User, error) {
	req.Timezone = strings.TrimSpace(req.Timezone)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "timezone must be an IANA identifier")
	}
	if err := s.repo.UpdateTimezone(ctx, userID, req.Timezone, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timezone")
	}
	return s.Get(ctx, userID)
}

// CreateUser onboards an account. Students and tutors receive a STU-/TUT- custom id;
// a student's tutor_uids are derived from the assignments.
func (s *UserService) CreateUser(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := requireAdmin(actor, "only administrators can create users"); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if req.Role != models.RoleStudent && len(req.Assignments) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students can have assignments")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:                    uuid.NewString(),
		Email:                 req.Email,
		PasswordHash:          string(passwordHash),
		Name:                  req.Name,
		Role:                  req.Role,
		Timezone:              req.Timezone,
		ContactNumber:         req.ContactNumber,
		ClassLevel:            req.ClassLevel,
		Syllabus:              req.Syllabus,
		PermanentClassLink:    req.PermanentClassLink,
		EmergencyContact:      strings.TrimSpace(req.EmergencyContact),
		MediumOfCommunication: strings.TrimSpace(req.MediumOfCommunication),
		Qualifications:        strings.TrimSpace(req.Qualifications),
		HourlyRate:            strings.TrimSpace(req.HourlyRate),
		Subjects:              pq.StringArray{},
	}
	switch req.Role {
	case models.RoleStudent:
		assignments, err := s.assignments.Normalize(ctx, req.Assignments)
		if err != nil {
			return nil, err
		}
		user.ApplyAssignments(assignments)
	case models.RoleTutor:
		user.Subjects = pq.StringArray(trimNonEmpty(req.Subjects))
	}
	if prefix := req.Role.CustomIDPrefix(); prefix != "" {
		if user.CustomID, err = s.newCustomID(ctx, prefix); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.ErrEmailInUse
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "custom_id": user.CustomID, "email": user.Email, "role": user.Role})
	s.audit(ctx, actor, models.AuditActionUserCreate, user.ID, nil, newPayload, req.IP, req.UserAgent)
	return user, nil
}

// UpdateUser edits profile fields. A supplied assignment list replaces the graph and
// recomputes tutor_uids. Session name snapshots are not rewritten.
func (s *UserService) UpdateUser(ctx context.Context, id string, req dto.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := requireAdmin(actor, "only administrators can update users"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPayload, _ := json.Marshal(user)

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Timezone != nil {
		user.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.ContactNumber != nil {
		user.ContactNumber = *req.ContactNumber
	}
	if req.ClassLevel != nil {
		user.ClassLevel = *req.ClassLevel
	}
	if req.Syllabus != nil {
		user.Syllabus = *req.Syllabus
	}
	if req.PermanentClassLink != nil {
		user.PermanentClassLink = *req.PermanentClassLink
	}
	if req.EmergencyContact != nil {
		user.EmergencyContact = strings.TrimSpace(*req.EmergencyContact)
	}
	if req.MediumOfCommunication != nil {
		user.MediumOfCommunication = strings.TrimSpace(*req.MediumOfCommunication)
	}
	if req.Qualifications != nil {
		user.Qualifications = strings.TrimSpace(*req.Qualifications)
	}
	if req.HourlyRate != nil {
		user.HourlyRate = strings.TrimSpace(*req.HourlyRate)
	}
	if req.Subjects != nil {
		// a student's subjects follow the assignment graph
		if user.Role != models.RoleTutor {
			return nil, appErrors.Clone(appErrors.ErrValidation, "only tutors have an editable subject list")
		}
		user.Subjects = pq.StringArray(trimNonEmpty(*req.Subjects))
	}
	if req.Assignments != nil {
		if user.Role != models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrValidation, "only students can have assignments")
		}
		assignments, err := s.assignments.Normalize(ctx, *req.Assignments)
		if err != nil {
			return nil, err
		}
		user.ApplyAssignments(assignments)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, appErrors.ErrEmailInUse
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(user)
	s.audit(ctx, actor, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload, req.IP, req.UserAgent)
	return user, nil
}

// DeleteUser removes an account and cascades to the sessions booked for it as a student.
// Administrators cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, id string, actor *models.JWTClaims, ip, userAgent string) (*dto.DeleteUserResponse, error) {
	if err := requireAdmin(actor, "only administrators can delete users"); err != nil {
		return nil, err
	}
	if id == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Cannot delete the currently signed-in admin user.")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.DeleteWithSessions(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if removed > 0 {
		tutors := []string(user.TutorUIDs)
		if len(tutors) == 0 {
			tutors = []string{""}
		}
		for _, tutorID := range tutors {
			s.cache.InvalidateSessionViews(ctx, id, tutorID)
			if s.notifier != nil {
				s.notifier.Notify(ctx, models.ChangeEvent{Kind: models.ChangeKindSession, Action: "deleted", StudentID: id, TutorID: tutorID})
			}
		}
	}
	newPayload, _ := json.Marshal(map[string]interface{}{"sessions_removed": removed})
	s.audit(ctx, actor, models.AuditActionUserDelete, id, nil, newPayload, ip, userAgent)
	s.logger.Info("user deleted", zap.String("user_id", id), zap.Int64("sessions_removed", removed))
	return &dto.DeleteUserResponse{UID: id, SessionsRemoved: removed}, nil
}

func (s *UserService) newCustomID(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < customIDAttempts; attempt++ {
		candidate, err := randomCustomID(prefix)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate id")
		}
		taken, err := s.repo.ExistsByCustomID(ctx, candidate)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check id")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique id")
}

func randomCustomID(prefix string) (string, error) {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	max := big.NewInt(int64(len(customIDAlphabet)))
	for i := 0; i < customIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random id: %w", err)
		}
		b.WriteByte(customIDAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *UserService) audit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValues, newValues []byte, ip, userAgent string) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
