package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/internal/repository"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

// memoryUsers is an in-memory users table shared by the service tests.
type memoryUsers struct {
	mu        sync.Mutex
	users     map[string]*models.User
	sessions  *memorySessions
	auditLogs []*models.AuditLog
	takenIDs  map[string]bool
	lastLogin map[string]time.Time
}

func newMemoryUsers(users ...models.User) *memoryUsers {
	m := &memoryUsers{users: make(map[string]*models.User), takenIDs: make(map[string]bool), lastLogin: make(map[string]time.Time)}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *memoryUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUsers) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryUsers) ListStudentsByTutor(ctx context.Context, tutorID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if u.Role != models.RoleStudent {
			continue
		}
		for _, uid := range u.TutorUIDs {
			if uid == tutorID {
				out = append(out, *u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryUsers) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memoryUsers) ExistsByCustomID(ctx context.Context, customID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenIDs[customID] {
		return true, nil
	}
	for _, u := range m.users {
		if u.CustomID == customID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *memoryUsers) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	for _, u := range m.users {
		if u.ID != user.ID && strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *memoryUsers) ReplaceAssignments(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[user.ID]
	if !ok || stored.Role != models.RoleStudent {
		return sql.ErrNoRows
	}
	stored.Assignments = user.Assignments
	stored.Subjects = user.Subjects
	stored.TutorUIDs = user.TutorUIDs
	return nil
}

func (m *memoryUsers) UpdateTimezone(ctx context.Context, id, timezone string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Timezone = timezone
	u.UpdatedAt = updatedAt
	return nil
}

func (m *memoryUsers) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogin[id] = ts
	return nil
}

func (m *memoryUsers) DeleteWithSessions(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	if _, ok := m.users[id]; !ok {
		m.mu.Unlock()
		return 0, sql.ErrNoRows
	}
	delete(m.users, id)
	m.mu.Unlock()
	if m.sessions == nil {
		return 0, nil
	}
	return m.sessions.deleteByStudent(id), nil
}

func (m *memoryUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *memoryUsers) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.auditLogs))
	for _, log := range m.auditLogs {
		actions = append(actions, log.Action)
	}
	return actions
}

// memorySessions mirrors the conditional semantics of the SQL session store.
type memorySessions struct {
	mu        sync.Mutex
	rows      map[string]*models.Session
	order     []string
	listCalls int
	// markHook runs before the conditional update; tests use it to simulate a concurrent writer.
	markHook func(id string)
	// listHook runs once after a listing has been read, outside the lock.
	listHook func()
}

func newMemorySessions(sessions ...models.Session) *memorySessions {
	m := &memorySessions{rows: make(map[string]*models.Session)}
	for i := range sessions {
		s := sessions[i]
		m.rows[s.ID] = &s
		m.order = append(m.order, s.ID)
	}
	return m
}

func (m *memorySessions) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	session.UpdatedAt = session.CreatedAt
	copy := *session
	m.rows[session.ID] = &copy
	m.order = append(m.order, session.ID)
	return nil
}

func (m *memorySessions) GetByID(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *row
	copy.Normalize()
	return &copy, nil
}

func (m *memorySessions) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	out := m.list(filter)
	m.mu.Lock()
	hook := m.listHook
	m.listHook = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memorySessions) list(filter models.SessionFilter) []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []models.Session
	for _, id := range m.order {
		row, ok := m.rows[id]
		if !ok {
			continue
		}
		if filter.StudentID != "" && row.StudentID != filter.StudentID {
			continue
		}
		if filter.TutorID != "" && row.TutorID != filter.TutorID {
			continue
		}
		if filter.Subject != "" && row.Subject != filter.Subject {
			continue
		}
		if filter.ClassDate != "" && row.ClassDate != filter.ClassDate {
			continue
		}
		if len(filter.Statuses) > 0 && !containsString(filter.Statuses, string(row.Status)) {
			continue
		}
		copy := *row
		copy.Normalize()
		out = append(out, copy)
	}
	return out
}

func (m *memorySessions) MarkAttendance(ctx context.Context, update models.AttendanceUpdate) error {
	if m.markHook != nil {
		m.markHook(update.SessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[update.SessionID]
	if !ok || row.StudentID != update.StudentID || !containsString(models.AwaitingAttendanceStatuses(), string(row.Status)) {
		return sql.ErrNoRows
	}
	row.Status = update.Status
	row.Summary = update.Summary
	row.UpdatedAt = update.UpdatedAt
	return nil
}

func (m *memorySessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memorySessions) raw(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memorySessions) setStatus(id string, status models.SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = status
}

func (m *memorySessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memorySessions) deleteByStudent(studentID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, row := range m.rows {
		if row.StudentID == studentID {
			delete(m.rows, id)
			removed++
		}
	}
	return removed
}

type memoryProgress struct {
	mu      sync.Mutex
	ledgers map[string]*models.ProgressLedger
}

func newMemoryProgress() *memoryProgress {
	return &memoryProgress{ledgers: make(map[string]*models.ProgressLedger)}
}

func progressKey(studentID, subject string) string { return studentID + "|" + subject }

func (m *memoryProgress) Get(ctx context.Context, studentID, subject string) (*models.ProgressLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.ledgers[progressKey(studentID, subject)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *ledger
	copy.CompletedChapters = append([]string(nil), ledger.CompletedChapters...)
	return &copy, nil
}

func (m *memoryProgress) ListByStudent(ctx context.Context, studentID string) ([]models.ProgressLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProgressLedger
	for _, ledger := range m.ledgers {
		if ledger.StudentID == studentID {
			out = append(out, *ledger)
		}
	}
	return out, nil
}

func (m *memoryProgress) AppendChapter(ctx context.Context, studentID, subject, label string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey(studentID, subject)
	ledger, ok := m.ledgers[key]
	if !ok {
		ledger = models.EmptyProgressLedger(studentID, subject)
		m.ledgers[key] = ledger
	}
	if ledger.Contains(label) {
		return false, nil
	}
	ledger.CompletedChapters = append(ledger.CompletedChapters, label)
	ledger.UpdatedAt = at
	return true, nil
}

func (m *memoryProgress) RemoveChapter(ctx context.Context, studentID, subject, label string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, ok := m.ledgers[progressKey(studentID, subject)]
	if !ok || !ledger.RemoveFirst(label) {
		return false, nil
	}
	ledger.UpdatedAt = at
	return true, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, event models.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, string(e.Kind)+":"+e.Action)
	}
	return out
}

// memoryFeed delivers published events to in-process subscribers.
type memoryFeed struct {
	mu   sync.Mutex
	subs map[string][]chan models.ChangeEvent
}

func newMemoryFeed() *memoryFeed {
	return &memoryFeed{subs: make(map[string][]chan models.ChangeEvent)}
}

func (f *memoryFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, channel := range event.Channels() {
		for _, sub := range f.subs[channel] {
			select {
			case sub <- event:
			default:
			}
		}
	}
	return nil
}

func (f *memoryFeed) Subscribe(ctx context.Context, channels ...string) (<-chan models.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan models.ChangeEvent, 16)
	for _, channel := range channels {
		f.subs[channel] = append(f.subs[channel], ch)
	}
	return ch, nil
}

// memoryCache stores JSON payloads the way the redis cache repository does.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	payload, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = payload
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCache) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, Name: "Admin"}
}

func tutorClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTutor}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

// tutoringFixture is the roster used across the service tests: student S takes Physics with
// tutor T and Chemistry with tutor U.
func tutoringFixture() *memoryUsers {
	student := models.User{ID: "S", CustomID: "STU-AAAA1111", Name: "Sara", Email: "sara@example.com", Role: models.RoleStudent, Timezone: "America/New_York"}
	student.ApplyAssignments(models.Assignments{
		{Subject: "Physics", TutorID: "T", TutorName: "Tom"},
		{Subject: "Chemistry", TutorID: "U", TutorName: "Uma"},
	})
	return newMemoryUsers(
		student,
		models.User{ID: "T", CustomID: "TUT-BBBB2222", Name: "Tom", Email: "tom@example.com", Role: models.RoleTutor, Timezone: "Asia/Tokyo"},
		models.User{ID: "U", CustomID: "TUT-CCCC3333", Name: "Uma", Email: "uma@example.com", Role: models.RoleTutor},
		models.User{ID: "admin-1", Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin},
	)
}
