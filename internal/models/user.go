package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTutor   UserRole = "tutor"
	RoleStudent UserRole = "student"
)

// Valid reports whether the role is one of the supported roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTutor, RoleStudent:
		return true
	default:
		return false
	}
}

// CustomIDPrefix returns the prefix used for human-facing ids.
func (r UserRole) CustomIDPrefix() string {
	switch r {
	case RoleStudent:
		return "STU"
	case RoleTutor:
		return "TUT"
	default:
		return ""
	}
}

// Assignment binds one subject of a student to the tutor who teaches it.
type Assignment struct {
	Subject   string `json:"subject" validate:"required"`
	TutorID   string `json:"tutor_id" validate:"required"`
	TutorName string `json:"tutor_name"`
}

// Assignments is the AssignmentGraph embedded in a student profile, stored as JSONB.
type Assignments []Assignment

// Value implements driver.Valuer.
func (a Assignments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Assignments) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Assignments{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("assignments: unsupported scan type")
	}
	if len(raw) == 0 {
		*a = Assignments{}
		return nil
	}
	return json.Unmarshal(raw, a)
}

// TutorFor returns the assignment bound to subject.
func (a Assignments) TutorFor(subject string) (Assignment, bool) {
	for _, entry := range a {
		if entry.Subject == subject {
			return entry, true
		}
	}
	return Assignment{}, false
}

// Subjects lists the assigned subjects in assignment order.
func (a Assignments) Subjects() []string {
	subjects := make([]string, 0, len(a))
	seen := make(map[string]struct{}, len(a))
	for _, entry := range a {
		if _, ok := seen[entry.Subject]; ok {
			continue
		}
		seen[entry.Subject] = struct{}{}
		subjects = append(subjects, entry.Subject)
	}
	return subjects
}

// DeriveTutorUIDs rebuilds the denormalized tutor id set from the assignments.
func DeriveTutorUIDs(assignments Assignments) pq.StringArray {
	set := make(map[string]struct{}, len(assignments))
	for _, entry := range assignments {
		id := strings.TrimSpace(entry.TutorID)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	uids := make([]string, 0, len(set))
	for id := range set {
		uids = append(uids, id)
	}
	sort.Strings(uids)
	return pq.StringArray(uids)
}

// User represents an application user stored in the users table.
// Students carry the AssignmentGraph; tutor_uids and subjects are derived from it.
type User struct {
	ID                    string         `db:"id" json:"id"`
	CustomID              string         `db:"custom_id" json:"custom_id"`
	Email                 string         `db:"email" json:"email"`
	PasswordHash          string         `db:"password_hash" json:"-"`
	Name                  string         `db:"name" json:"name"`
	Role                  UserRole       `db:"role" json:"role"`
	Timezone              string         `db:"timezone" json:"timezone"`
	ContactNumber         string         `db:"contact_number" json:"contact_number,omitempty"`
	ClassLevel            string         `db:"class_level" json:"class_level,omitempty"`
	Syllabus              string         `db:"syllabus" json:"syllabus,omitempty"`
	PermanentClassLink    string         `db:"permanent_class_link" json:"permanent_class_link,omitempty"`
	EmergencyContact      string         `db:"emergency_contact" json:"emergency_contact,omitempty"`
	MediumOfCommunication string         `db:"medium_of_communication" json:"medium_of_communication,omitempty"`
	Qualifications        string         `db:"qualifications" json:"qualifications,omitempty"`
	HourlyRate            string         `db:"hourly_rate" json:"hourly_rate,omitempty"`
	Subjects              pq.StringArray `db:"subjects" json:"subjects"`
	Assignments           Assignments    `db:"assignments" json:"assignments"`
	TutorUIDs             pq.StringArray `db:"tutor_uids" json:"tutor_uids"`
	LastLogin             *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// ApplyAssignments overwrites the graph and recomputes every field derived from it.
func (u *User) ApplyAssignments(assignments Assignments) {
	if assignments == nil {
		assignments = Assignments{}
	}
	u.Assignments = assignments
	u.Subjects = pq.StringArray(assignments.Subjects())
	u.TutorUIDs = DeriveTutorUIDs(assignments)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	TutorUID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
