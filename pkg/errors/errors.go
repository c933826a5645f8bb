package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned and wrapped variants compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrEmailInUse         = New("EMAIL_IN_USE", http.StatusBadRequest, "Email already in use")
)

// Scheduling and attendance failures.
var (
	ErrUnknownStudent           = New("UNKNOWN_STUDENT", http.StatusNotFound, "student not found")
	ErrSubjectNotAssigned       = New("SUBJECT_NOT_ASSIGNED", http.StatusUnprocessableEntity, "subject is not assigned to this student")
	ErrTutorMismatch            = New("TUTOR_MISMATCH", http.StatusUnprocessableEntity, "tutor is not bound to this subject for the student")
	ErrInvalidDateOrTime        = New("INVALID_DATE_OR_TIME", http.StatusBadRequest, "class date and time are required (YYYY-MM-DD, HH:MM)")
	ErrOriginalSessionNotMissed = New("ORIGINAL_SESSION_NOT_MISSED", http.StatusConflict, "no missed session found for the original class date")
	ErrSessionNotFound          = New("SESSION_NOT_FOUND", http.StatusNotFound, "session not found")
	ErrSessionNotPending        = New("SESSION_NOT_PENDING", http.StatusConflict, "session attendance already recorded")
	ErrSummaryRequired          = New("SUMMARY_REQUIRED", http.StatusBadRequest, "class summary is required for a completed class")
)

// Curriculum progress failures.
var (
	ErrInvalidChapterInput    = New("INVALID_CHAPTER_INPUT", http.StatusBadRequest, "chapter number and name are required")
	ErrChapterAlreadyRecorded = New("CHAPTER_ALREADY_RECORDED", http.StatusConflict, "chapter already recorded")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
