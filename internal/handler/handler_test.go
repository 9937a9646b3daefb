package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"drivingschool-api/internal/access"
	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/auth"
	"drivingschool-api/internal/handler"
	"drivingschool-api/internal/middleware"
	"drivingschool-api/internal/model"
)

const adminToken = "admin-secret"

// memDB backs both the user and appointment sides of the handlers.
type memDB struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	appts  map[int64]*model.Appointment
	nextID int64
}

func newMemDB() *memDB {
	return &memDB{users: map[int64]*model.User{}, appts: map[int64]*model.Appointment{}}
}

func (m *memDB) id() int64 { m.nextID++; return m.nextID }

func (m *memDB) CreateUser(_ context.Context, username, hash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, apperrors.New(apperrors.ErrConflict, "Username already exists")
		}
	}
	u := &model.User{ID: m.id(), Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memDB) UserByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("User not found")
}

func (m *memDB) RecordFailedLogin(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].FailedAttempts++
	return nil
}

func (m *memDB) RecordLogin(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.users[id].FailedAttempts = 0
	m.users[id].LastLogin = &now
	return nil
}

func (m *memDB) ListUsers(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDB) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperrors.NotFound("User not found")
	}
	delete(m.users, id)
	for aid, a := range m.appts {
		if a.StudentID == id {
			delete(m.appts, aid)
		}
	}
	return nil
}

func (m *memDB) SetPassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("User not found")
	}
	u.PasswordHash = hash
	u.FailedAttempts = 0
	return nil
}

func (m *memDB) withName(a *model.Appointment) *model.Appointment {
	cp := *a
	cp.StudentName = m.users[a.StudentID].Username
	return &cp
}

func (m *memDB) CreateAppointment(_ context.Context, studentID int64, date time.Time, typ string) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[studentID]; !ok {
		return nil, apperrors.Validation("Student not found")
	}
	now := time.Now()
	a := &model.Appointment{ID: m.id(), StudentID: studentID, Date: date, Type: typ,
		Status: model.StatusSuggested, CreatedAt: now, UpdatedAt: now}
	m.appts[a.ID] = a
	return m.withName(a), nil
}

func (m *memDB) ListAppointments(_ context.Context, studentID int64, from, to time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Appointment{}
	for _, a := range m.appts {
		if a.StudentID == studentID && !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, *m.withName(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memDB) Transition(_ context.Context, id, studentID int64, status model.Status) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.StudentID != studentID {
		return nil, apperrors.NotFound("Appointment not found")
	}
	if a.Status != model.StatusSuggested {
		return nil, apperrors.WrongState("Appointment already " + string(a.Status))
	}
	a.Status = status
	return m.withName(a), nil
}

func (m *memDB) EditAppointment(_ context.Context, id int64, date time.Time, typ string) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperrors.NotFound("Appointment not found")
	}
	a.Date, a.Type = date, typ
	return m.withName(a), nil
}

func (m *memDB) DeleteAppointment(_ context.Context, id int64) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperrors.NotFound("Appointment not found")
	}
	delete(m.appts, id)
	return m.withName(a), nil
}

type env struct {
	router *gin.Engine
	db     *memDB
	issuer *auth.Issuer
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newMemDB()
	iss := auth.NewIssuer("test-secret", 24*time.Hour)
	creds := auth.NewCredentialStore(db, auth.CredentialOptions{BcryptCost: bcrypt.MinCost}, zerolog.Nop())
	res := access.NewResolver(iss, adminToken)

	r := gin.New()
	r.Use(middleware.ErrorDetail(false))
	handler.New(creds, iss, db, time.UTC).Routes(r, res)
	return &env{router: r, db: db, issuer: iss}
}

type call struct {
	method, path string
	body         any
	token        string
	admin        bool
	adminHeader  string
}

func (e *env) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set(middleware.AdminTokenHeader, adminToken)
	}
	if c.adminHeader != "" {
		req.Header.Set(middleware.AdminTokenHeader, c.adminHeader)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeInto[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func registerAndLogin(t *testing.T, e *env, username string) loginResponse {
	t.Helper()
	creds := map[string]string{"username": username, "password": "longpassword1"}
	w := e.do(t, call{method: http.MethodPost, path: "/register", body: creds})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, call{method: http.MethodPost, path: "/login", body: creds})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeInto[loginResponse](t, w)
}

func TestRegisterLoginEmptyList(t *testing.T) {
	e := setup(t)
	lr := registerAndLogin(t, e, "alice01")

	require.NotEmpty(t, lr.Token)
	assert.Equal(t, "alice01", lr.User.Username)
	claims, err := e.issuer.Verify(lr.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice01", claims.Username)

	w := e.do(t, call{method: http.MethodGet, path: "/appointments?startDate=2025-06-01&endDate=2025-06-30", token: lr.Token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAcceptThenRejectIsWrongState(t *testing.T) {
	e := setup(t)
	alice := registerAndLogin(t, e, "alice01")

	w := e.do(t, call{method: http.MethodPost, path: "/appointments", admin: true, body: map[string]any{
		"student_id": alice.User.ID, "date": "2025-06-02T09:00", "type": "theory", "status": "accepted",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeInto[model.Appointment](t, w)
	assert.Equal(t, model.StatusSuggested, created.Status)
	assert.True(t, created.Date.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)))

	accept := fmt.Sprintf("/appointments/%d/accept", created.ID)
	reject := fmt.Sprintf("/appointments/%d/reject", created.ID)

	w = e.do(t, call{method: http.MethodPut, path: accept, token: alice.Token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusAccepted, decodeInto[model.Appointment](t, w).Status)

	for _, path := range []string{accept, reject} {
		w = e.do(t, call{method: http.MethodPut, path: path, token: alice.Token})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w = e.do(t, call{method: http.MethodGet, path: "/appointments?startDate=2025-06-02&endDate=2025-06-02", token: alice.Token})
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeInto[[]model.Appointment](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusAccepted, list[0].Status)
	assert.Equal(t, "alice01", list[0].StudentName)
}

func TestTransitionByOtherStudentIsNotFound(t *testing.T) {
	e := setup(t)
	alice := registerAndLogin(t, e, "alice01")
	bob := registerAndLogin(t, e, "bob_22")

	a, err := e.db.CreateAppointment(context.Background(), alice.User.ID, time.Now(), "parking")
	require.NoError(t, err)

	for _, verb := range []string{"accept", "reject"} {
		w := e.do(t, call{method: http.MethodPut, path: fmt.Sprintf("/appointments/%d/%s", a.ID, verb), token: bob.Token})
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	w := e.do(t, call{method: http.MethodPut, path: "/appointments/99999/accept", token: alice.Token})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterErrors(t *testing.T) {
	e := setup(t)
	registerAndLogin(t, e, "alice01")

	tests := []struct {
		name string
		body any
	}{
		{"duplicate", map[string]string{"username": "alice01", "password": "differentpass"}},
		{"short username", map[string]string{"username": "al", "password": "longpassword1"}},
		{"bad characters", map[string]string{"username": "al ice", "password": "longpassword1"}},
		{"short password", map[string]string{"username": "carol", "password": "1234567"}},
		{"not json", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, call{method: http.MethodPost, path: "/register", body: tt.body})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, decodeInto[map[string]any](t, w)["success"])
		})
	}
}

func TestLoginFailures(t *testing.T) {
	e := setup(t)
	registerAndLogin(t, e, "alice01")

	w := e.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{"username": "alice01", "password": "wrongpassword"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{"username": "ghost", "password": "longpassword1"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	u, err := e.db.UserByUsername(context.Background(), "alice01")
	require.NoError(t, err)
	assert.Equal(t, 1, u.FailedAttempts)
}

func TestListRequiresSessionAndDates(t *testing.T) {
	e := setup(t)
	alice := registerAndLogin(t, e, "alice01")

	w := e.do(t, call{method: http.MethodGet, path: "/appointments?startDate=2025-06-01&endDate=2025-06-30"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := e.issuer.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }).
		Mint(&model.User{ID: alice.User.ID, Username: "alice01"})
	require.NoError(t, err)
	w = e.do(t, call{method: http.MethodGet, path: "/appointments?startDate=2025-06-01&endDate=2025-06-30", token: expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for _, q := range []string{"", "?startDate=2025-06-01", "?startDate=junk&endDate=2025-06-30", "?startDate=2025-06-30&endDate=2025-06-01"} {
		w = e.do(t, call{method: http.MethodGet, path: "/appointments" + q, token: alice.Token})
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSessionIgnoresAdminHeader(t *testing.T) {
	e := setup(t)
	alice := registerAndLogin(t, e, "alice01")
	a, err := e.db.CreateAppointment(context.Background(), alice.User.ID, time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC), "highway")
	require.NoError(t, err)

	w := e.do(t, call{method: http.MethodGet, path: "/appointments?startDate=2025-06-01&endDate=2025-06-30", token: alice.Token, adminHeader: "stale"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeInto[[]model.Appointment](t, w), 1)

	w = e.do(t, call{method: http.MethodPut, path: fmt.Sprintf("/appointments/%d/accept", a.ID), token: alice.Token, adminHeader: "stale"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusAccepted, decodeInto[model.Appointment](t, w).Status)

	// and the session does not rescue a bad admin secret
	w = e.do(t, call{method: http.MethodPost, path: "/appointments", token: alice.Token, adminHeader: "stale", body: map[string]any{
		"student_id": alice.User.ID, "date": "2025-06-04T09:00", "type": "theory",
	}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid admin token", decodeInto[map[string]any](t, w)["message"])
}

func TestAdminAppointmentRoutes(t *testing.T) {
	e := setup(t)
	alice := registerAndLogin(t, e, "alice01")

	body := map[string]any{"student_id": alice.User.ID, "date": "2025-06-02T09:00", "type": "theory"}
	w := e.do(t, call{method: http.MethodPost, path: "/appointments", body: body})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, call{method: http.MethodPost, path: "/appointments", body: body, token: alice.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, call{method: http.MethodPost, path: "/appointments", admin: true, body: map[string]any{"student_id": alice.User.ID}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, call{method: http.MethodPost, path: "/appointments", admin: true, body: body})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeInto[model.Appointment](t, w).ID

	w = e.do(t, call{method: http.MethodPut, path: fmt.Sprintf("/appointments/%d", id), admin: true,
		body: map[string]string{"date": "2025-06-03T10:30:00Z", "type": "highway"}})
	require.Equal(t, http.StatusOK, w.Code)
	edited := decodeInto[model.Appointment](t, w)
	assert.Equal(t, "highway", edited.Type)
	assert.Equal(t, model.StatusSuggested, edited.Status)

	w = e.do(t, call{method: http.MethodPut, path: "/appointments/424242", admin: true,
		body: map[string]string{"date": "2025-06-03", "type": "highway"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, call{method: http.MethodDelete, path: fmt.Sprintf("/appointments/%d", id), admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decodeInto[struct {
		Message     string            `json:"message"`
		Appointment model.Appointment `json:"appointment"`
	}](t, w)
	assert.Equal(t, id, deleted.Appointment.ID)

	w = e.do(t, call{method: http.MethodDelete, path: fmt.Sprintf("/appointments/%d", id), admin: true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, call{method: http.MethodDelete, path: "/appointments/abc", admin: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUserRoutes(t *testing.T) {
	e := setup(t)

	w := e.do(t, call{method: http.MethodGet, path: "/admin/users"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, call{method: http.MethodPost, path: "/admin/users", admin: true,
		body: map[string]string{"username": "dave_9", "password": "longpassword1"}})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeInto[struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}](t, w)

	w = e.do(t, call{method: http.MethodPost, path: "/admin/users", admin: true,
		body: map[string]string{"username": "dave_9", "password": "longpassword1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, call{method: http.MethodGet, path: "/admin/users", admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")
	list := decodeInto[struct {
		Success bool         `json:"success"`
		Users   []model.User `json:"users"`
	}](t, w)
	assert.True(t, list.Success)
	require.Len(t, list.Users, 1)

	reset := fmt.Sprintf("/admin/users/%d/reset-password", created.User.ID)
	w = e.do(t, call{method: http.MethodPost, path: reset, admin: true, body: map[string]string{"newPassword": "short"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, call{method: http.MethodPost, path: reset, admin: true, body: map[string]string{"newPassword": "evenlongerpass"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{"username": "dave_9", "password": "evenlongerpass"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, call{method: http.MethodDelete, path: fmt.Sprintf("/admin/users/%d", created.User.ID), admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, call{method: http.MethodDelete, path: fmt.Sprintf("/admin/users/%d", created.User.ID), admin: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
