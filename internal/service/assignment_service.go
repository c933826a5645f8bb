package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

type assignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListStudentsByTutor(ctx context.Context, tutorID string) ([]models.User, error)
	ReplaceAssignments(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AssignmentService maintains the per-student subject to tutor bindings.
type AssignmentService struct {
	repo      assignmentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(repo assignmentRepository, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, validator: validate, logger: logger}
}

// LoadStudent returns the student profile or ErrUnknownStudent.
func (s *AssignmentService) LoadStudent(ctx context.Context, studentID string) (*models.User, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.ErrUnknownStudent
	}
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnknownStudent
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.ErrUnknownStudent
	}
	return student, nil
}

// Resolve returns the student and the assignment bound to subject.
func (s *AssignmentService) Resolve(ctx context.Context, studentID, subject string) (*models.User, models.Assignment, error) {
	student, err := s.LoadStudent(ctx, studentID)
	if err != nil {
		return nil, models.Assignment{}, err
	}
	assignment, ok := student.Assignments.TutorFor(subject)
	if !ok {
		return nil, models.Assignment{}, appErrors.ErrSubjectNotAssigned
	}
	return student, assignment, nil
}

// Normalize validates a full AssignmentGraph: one tutor per subject, every tutor an
// existing tutor profile. Tutor names are refreshed from the tutor profiles.
func (s *AssignmentService) Normalize(ctx context.Context, assignments models.Assignments) (models.Assignments, error) {
	normalized := make(models.Assignments, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	tutorIDs := make([]string, 0, len(assignments))
	for _, entry := range assignments {
		entry.Subject = strings.TrimSpace(entry.Subject)
		entry.TutorID = strings.TrimSpace(entry.TutorID)
		if entry.Subject == "" || entry.TutorID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "each assignment needs a subject and a tutor")
		}
		key := strings.ToLower(entry.Subject)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %q is assigned more than once", entry.Subject))
		}
		seen[key] = struct{}{}
		normalized = append(normalized, entry)
		tutorIDs = append(tutorIDs, entry.TutorID)
	}
	if len(normalized) == 0 {
		return normalized, nil
	}

	tutors, err := s.repo.FindByIDs(ctx, tutorIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutors")
	}
	byID := make(map[string]models.User, len(tutors))
	for _, tutor := range tutors {
		byID[tutor.ID] = tutor
	}
	for i, entry := range normalized {
		tutor, ok := byID[entry.TutorID]
		if !ok || tutor.Role != models.RoleTutor {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tutor %s not found for subject %s", entry.TutorID, entry.Subject))
		}
		normalized[i].TutorName = tutor.Name
	}
	return normalized, nil
}

// Replace overwrites a student's AssignmentGraph and its derived tutor id set.
func (s *AssignmentService) Replace(ctx context.Context, studentID string, req dto.ReplaceAssignmentsRequest, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can edit assignments")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignments payload")
	}

	student, err := s.LoadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	previous, _ := json.Marshal(student.Assignments)

	normalized, err := s.Normalize(ctx, req.Assignments)
	if err != nil {
		return nil, err
	}
	student.ApplyAssignments(normalized)
	if err := s.repo.ReplaceAssignments(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnknownStudent
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save assignments")
	}

	current, _ := json.Marshal(student.Assignments)
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionAssignmentReplace,
		Resource:   "user",
		ResourceID: &student.ID,
		OldValues:  previous,
		NewValues:  current,
	}); err != nil {
		s.logger.Warn("failed to record assignment audit log", zap.Error(err))
	}
	return student, nil
}

// StudentsForTutor lists the students with at least one subject bound to tutorID.
func (s *AssignmentService) StudentsForTutor(ctx context.Context, tutorID string) ([]models.User, error) {
	students, err := s.repo.ListStudentsByTutor(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	result := make([]models.User, 0, len(students))
	for _, student := range students {
		if len(SubjectsTaughtBy(student.Assignments, tutorID)) == 0 {
			s.logger.Warn("tutor_uids out of sync with assignments", zap.String("student_id", student.ID), zap.String("tutor_id", tutorID))
			continue
		}
		result = append(result, student)
	}
	return result, nil
}

// SubjectsTaughtBy returns the subjects of a graph bound to tutorID.
func SubjectsTaughtBy(assignments models.Assignments, tutorID string) []string {
	subjects := make([]string, 0, len(assignments))
	for _, entry := range assignments {
		if entry.TutorID == tutorID {
			subjects = append(subjects, entry.Subject)
		}
	}
	return subjects
}
