package dto

import "github.com/noah-isme/tutoring-api/internal/models"

// CreateUserRequest onboards a student, tutor or administrator.
type CreateUserRequest struct {
	Role                  models.UserRole    `json:"role" validate:"required,user_role"`
	Name                  string             `json:"name" validate:"required"`
	Email                 string             `json:"email" validate:"required,email"`
	Password              string             `json:"password" validate:"required,min=6"`
	Timezone              string             `json:"timezone" validate:"omitempty,iana_zone"`
	ContactNumber         string             `json:"contact_number"`
	ClassLevel            string             `json:"class_level"`
	Syllabus              string             `json:"syllabus"`
	PermanentClassLink    string             `json:"permanent_class_link" validate:"omitempty,url"`
	EmergencyContact      string             `json:"emergency_contact"`
	MediumOfCommunication string             `json:"medium_of_communication"`
	Qualifications        string             `json:"qualifications"`
	HourlyRate            string             `json:"hourly_rate"`
	Subjects              []string           `json:"subjects"`
	Assignments           models.Assignments `json:"assignments" validate:"omitempty,dive"`
	IP                    string             `json:"-"`
	UserAgent             string             `json:"-"`
}

// UpdateUserRequest edits a profile. Nil fields are left untouched; a non-nil
// Assignments replaces a student's graph and a non-nil Subjects replaces a tutor's list.
type UpdateUserRequest struct {
	Name                  *string             `json:"name" validate:"omitempty,min=1"`
	Email                 *string             `json:"email" validate:"omitempty,email"`
	Timezone              *string             `json:"timezone" validate:"omitempty,iana_zone"`
	ContactNumber         *string             `json:"contact_number"`
	ClassLevel            *string             `json:"class_level"`
	Syllabus              *string             `json:"syllabus"`
	PermanentClassLink    *string             `json:"permanent_class_link" validate:"omitempty,url"`
	EmergencyContact      *string             `json:"emergency_contact"`
	MediumOfCommunication *string             `json:"medium_of_communication"`
	Qualifications        *string             `json:"qualifications"`
	HourlyRate            *string             `json:"hourly_rate"`
	Subjects              *[]string           `json:"subjects"`
	Assignments           *models.Assignments `json:"assignments" validate:"omitempty,dive"`
	IP                    string              `json:"-"`
	UserAgent             string              `json:"-"`
}

// ReplaceAssignmentsRequest overwrites a student's AssignmentGraph.
type ReplaceAssignmentsRequest struct {
	Assignments models.Assignments `json:"assignments" validate:"dive"`
}

// CreateUserResponse mirrors what the relay returns after onboarding.
type CreateUserResponse struct {
	UID      string `json:"uid"`
	CustomID string `json:"custom_id"`
}

// DeleteUserResponse reports how many sessions were removed with the user.
type DeleteUserResponse struct {
	UID             string `json:"uid"`
	SessionsRemoved int64  `json:"sessions_removed"`
}
