package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

func pendingPhysics(id string) models.Session {
	return models.Session{ID: id, StudentID: "S", StudentName: "Sara", TutorID: "T", TutorName: "Tom", Subject: "Physics", ClassDate: "2024-03-10", ClassTime: "15:00", Status: models.SessionStatusScheduled}
}

func TestMarkAttendanceCompletedNeedsSummary(t *testing.T) {
	h := newSchedulingHarness(time.Now(), pendingPhysics("r1"))

	_, err := h.attendance.MarkAttendance(context.Background(), "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusCompleted, Summary: "   "}, tutorClaims("T"))
	assert.True(t, errors.Is(err, appErrors.ErrSummaryRequired))
	assert.Equal(t, models.SessionStatusScheduled, h.sessions.raw("r1").Status)
	assert.Empty(t, h.notifier.actions())
}

func TestMarkAttendanceIsOneShot(t *testing.T) {
	h := newSchedulingHarness(time.Now(), pendingPhysics("r1"))
	ctx := context.Background()

	session, err := h.attendance.MarkAttendance(ctx, "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusCompleted, Summary: "  Covered Newton's laws\n"}, tutorClaims("T"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, "  Covered Newton's laws\n", h.sessions.raw("r1").Summary)
	assert.Equal(t, []string{"session:completed"}, h.notifier.actions())

	_, err = h.attendance.MarkAttendance(ctx, "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed}, tutorClaims("T"))
	assert.True(t, errors.Is(err, appErrors.ErrSessionNotPending))

	// a repeated completion is NotPending even without a summary
	_, err = h.attendance.MarkAttendance(ctx, "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusCompleted}, tutorClaims("T"))
	assert.True(t, errors.Is(err, appErrors.ErrSessionNotPending))
	assert.Equal(t, "  Covered Newton's laws\n", h.sessions.raw("r1").Summary)
}

func TestMarkAttendanceMissedAcceptsEmptySummary(t *testing.T) {
	h := newSchedulingHarness(time.Now(), pendingPhysics("r1"))

	session, err := h.attendance.MarkAttendance(context.Background(), "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusMissed, session.Status)
}

func TestMarkAttendanceLegacyPendingRow(t *testing.T) {
	row := pendingPhysics("r1")
	row.Status = "pending"
	h := newSchedulingHarness(time.Now(), row)

	_, err := h.attendance.MarkAttendance(context.Background(), "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed, Summary: "No show"}, tutorClaims("T"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusMissed, h.sessions.raw("r1").Status)
}

func TestMarkAttendanceRejections(t *testing.T) {
	cases := []struct {
		name      string
		sessionID string
		req       dto.MarkAttendanceRequest
		actor     *models.JWTClaims
		wantCode  string
	}{
		{"unknown session", "nope", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed}, tutorClaims("T"), appErrors.ErrSessionNotFound.Code},
		{"student mismatch", "r1", dto.MarkAttendanceRequest{StudentID: "other", Status: models.SessionStatusMissed}, tutorClaims("T"), appErrors.ErrSessionNotFound.Code},
		{"other tutor", "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed}, tutorClaims("U"), appErrors.ErrForbidden.Code},
		{"student caller", "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed}, studentClaims("S"), appErrors.ErrForbidden.Code},
		{"not a terminal status", "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusScheduled}, tutorClaims("T"), appErrors.ErrValidation.Code},
		{"anonymous", "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusMissed}, nil, appErrors.ErrUnauthorized.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newSchedulingHarness(time.Now(), pendingPhysics("r1"))
			_, err := h.attendance.MarkAttendance(context.Background(), tc.sessionID, tc.req, tc.actor)
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
			assert.Equal(t, models.SessionStatusScheduled, h.sessions.raw("r1").Status)
		})
	}
}

func TestMarkAttendanceLosesRaceToConcurrentWriter(t *testing.T) {
	h := newSchedulingHarness(time.Now(), pendingPhysics("r1"))
	h.sessions.markHook = func(id string) {
		h.sessions.markHook = nil
		h.sessions.setStatus(id, models.SessionStatusMissed)
	}

	_, err := h.attendance.MarkAttendance(context.Background(), "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: models.SessionStatusCompleted, Summary: "done"}, tutorClaims("T"))
	assert.True(t, errors.Is(err, appErrors.ErrSessionNotPending))
	assert.Equal(t, models.SessionStatusMissed, h.sessions.raw("r1").Status)
	assert.Empty(t, h.notifier.actions())
}

func TestMarkAttendanceConcurrentCallersExactlyOneWins(t *testing.T) {
	h := newSchedulingHarness(time.Now(), pendingPhysics("r1"))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := models.SessionStatusCompleted
			if i%2 == 0 {
				status = models.SessionStatusMissed
			}
			_, results[i] = h.attendance.MarkAttendance(ctx, "r1", dto.MarkAttendanceRequest{StudentID: "S", Status: status, Summary: "summary"}, tutorClaims("T"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, appErrors.ErrSessionNotPending), "got %v", err)
	}
	assert.Equal(t, 1, wins)
}
