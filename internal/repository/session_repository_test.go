package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-api/internal/models"
)

var sessionRowColumns = []string{"id", "student_id", "student_name", "tutor_id", "tutor_name", "subject", "class_date", "class_time", "status",
	"is_rescheduled", "original_class_date", "summary", "created_at", "updated_at"}

func TestSessionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{StudentID: "s1", TutorID: "t1", Subject: "Physics", ClassDate: "2024-03-10", ClassTime: "15:00"}
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.False(t, session.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryGetNormalizesPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("r1", "s1", "Asha", "t1", "Tara", "Physics", "2024-03-10", "15:00", "pending", false, "", "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).WithArgs("r1").WillReturnRows(rows)

	session, err := repo.GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow("r1", "s1", "Asha", "t1", "Tara", "Physics", "2024-03-10", "15:00", "missed", false, "", "Network issue", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE student_id = $1 AND subject = $2 AND status IN ($3) ORDER BY class_date ASC, class_time ASC")).
		WithArgs("s1", "Physics", "missed").
		WillReturnRows(rows)

	sessions, err := repo.List(context.Background(), models.SessionFilter{
		StudentID: "s1",
		Subject:   "Physics",
		Statuses:  []string{string(models.SessionStatusMissed)},
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusMissed, sessions[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryMarkAttendanceIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND student_id = ? AND status IN ('scheduled', 'pending')")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND student_id = ? AND status IN ('scheduled', 'pending')")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	update := models.AttendanceUpdate{SessionID: "r1", StudentID: "s1", Status: models.SessionStatusCompleted, Summary: "Covered loops"}
	require.NoError(t, repo.MarkAttendance(context.Background(), update))

	err := repo.MarkAttendance(context.Background(), update)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = $1")).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = $1")).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "r1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "r1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
