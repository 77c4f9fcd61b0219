package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressiotrack/internal/auth"
	"pressiotrack/internal/mail"
	"pressiotrack/internal/metrics"
	"pressiotrack/internal/models"
	"pressiotrack/internal/service"
	"pressiotrack/internal/storage"
)

type testEnv struct {
	router   *gin.Engine
	storage  *storage.MemoryStorage
	sender   *mail.LogSender
	notifier *mail.Notifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	st := storage.NewMemoryStorage()
	sender := mail.NewLogSender(log)
	notifier := mail.NewNotifier(sender, log, m, mail.WithInitialInterval(time.Millisecond))
	t.Cleanup(notifier.Wait)

	svc := service.NewService(service.Deps{
		Storage:  st,
		Signer:   auth.NewSigner("handler-test-secret", 24*time.Hour, 24*time.Hour),
		Notifier: notifier,
		Composer: mail.NewComposer("http://front.test", 24*time.Hour, time.Hour),
		Metrics:  m,
		Log:      log,
		ResetTTL: time.Hour,
	})

	h := NewHandler(svc, log, Options{
		AllowedOrigins: []string{"http://front.test"},
		Gatherer:       reg,
	})

	return &testEnv{router: h.InitRoutes(), storage: st, sender: sender, notifier: notifier}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	return rec
}

// register creates an account and returns its id and session token.
func (e *testEnv) register(t *testing.T, email string, role models.Role) (int64, string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/pressiotrack/register", "", gin.H{
		"name":     "User " + email,
		"email":    email,
		"password": "secret123",
		"role":     string(role),
		"phone":    "11 99999-0000",
		"age":      55,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp.User.ID, resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestRegisterSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/pressiotrack/register", "", gin.H{
		"name": "Ana", "email": "ana@example.com", "password": "secret123",
		"role": "patient", "phone": "1", "age": 70,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/pressiotrack/me", nil)
	req.AddCookie(session)
	me := httptest.NewRecorder()
	env.router.ServeHTTP(me, req)

	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"email":"ana@example.com"`)
	assert.Contains(t, me.Body.String(), `"role":"PATIENT"`)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken@example.com", models.RolePatient)

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
	}{
		{
			name:   "invalid email",
			path:   "/pressiotrack/register",
			body:   gin.H{"name": "A", "email": "nope", "password": "secret123", "role": "PATIENT", "phone": "1"},
			status: http.StatusBadRequest,
		},
		{
			name:   "duplicate",
			path:   "/pressiotrack/register",
			body:   gin.H{"name": "A", "email": "taken@example.com", "password": "secret123", "role": "PATIENT", "phone": "1"},
			status: http.StatusConflict,
		},
		{
			name:   "admin self-registration",
			path:   "/pressiotrack/register",
			body:   gin.H{"name": "A", "email": "a@example.com", "password": "secret123", "role": "ADMIN", "phone": "1"},
			status: http.StatusBadRequest,
		},
		{
			name:   "wrong password",
			path:   "/pressiotrack/login",
			body:   gin.H{"email": "taken@example.com", "password": "wrong-one"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Message)
		})
	}
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/pressiotrack/perfil", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/pressiotrack/perfil", "not-a-jwt", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/pressiotrack/perfil", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGating(t *testing.T) {
	env := newTestEnv(t)
	_, patient := env.register(t, "p@example.com", models.RolePatient)
	_, caregiver := env.register(t, "c@example.com", models.RoleCaregiver)

	rec := env.do(t, http.MethodPost, "/pressiotrack/inserir", caregiver, gin.H{"systolic": 120, "diastolic": 80})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "only patients")

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/pressiotrack/associacao/pacientes", patient, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/pressiotrack/admin/users", patient, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/pressiotrack/1", patient, nil).Code)
}

func TestRoleChangeAppliesToExistingSession(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.register(t, "p@example.com", models.RolePatient)
	adminID, _ := env.register(t, "admin@example.com", models.RolePatient)

	require.NoError(t, env.storage.AssignRole(t.Context(), adminID, models.RoleAdmin))
	rec := env.do(t, http.MethodPost, "/pressiotrack/login", "", gin.H{"email": "admin@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	admin := decode[sessionResponse](t, rec).Token

	require.NoError(t, env.storage.AssignRole(t.Context(), userID, models.RoleCaregiver))

	rec = env.do(t, http.MethodPost, "/pressiotrack/inserir", token, gin.H{"systolic": 120, "diastolic": 80})
	assert.Equal(t, http.StatusForbidden, rec.Code, "the old PATIENT token must not outlive the role change")
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/pressiotrack/associacao/pacientes", token, nil).Code)

	require.NoError(t, env.storage.AssignRole(t.Context(), adminID, models.RolePatient))
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/pressiotrack/admin/users", admin, nil).Code)
}

func TestReadingsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.register(t, "owner@example.com", models.RolePatient)
	_, other := env.register(t, "other@example.com", models.RolePatient)

	rec := env.do(t, http.MethodPost, "/pressiotrack/inserir", owner, gin.H{"systolic": 150, "diastolic": 95, "note": "morning"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reading := decode[models.Reading](t, rec)
	assert.Equal(t, models.StatusHigh, reading.Status)

	env.notifier.Wait()
	assert.Len(t, env.sender.Sent(), 1)

	path := fmt.Sprintf("/pressiotrack/buscarUnica/%d", reading.ID)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, owner, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, other, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/pressiotrack/buscarUnica/abc", owner, nil).Code)

	rec = env.do(t, http.MethodPost, "/pressiotrack/inserir", owner, gin.H{"systolic": 0, "diastolic": 80})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/pressiotrack/atualizar/%d", reading.ID), owner, gin.H{"systolic": 120, "diastolic": 80})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusNormal, decode[models.Reading](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/pressiotrack/buscar", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Reading](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/pressiotrack/tendencia", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Reading](t, rec), 1)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, fmt.Sprintf("/pressiotrack/deletar/%d", reading.ID), other, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, fmt.Sprintf("/pressiotrack/deletar/%d", reading.ID), owner, nil).Code)
}

func TestProfileOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "p@example.com", models.RolePatient)

	rec := env.do(t, http.MethodGet, "/pressiotrack/perfil", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[models.Profile](t, rec)
	assert.Equal(t, models.DefaultSystolic, profile.Baseline.Systolic)

	rec = env.do(t, http.MethodPut, "/pressiotrack/atualizarPerfil", token, gin.H{
		"name": "P", "email": "p@example.com", "phone": "2", "age": 56,
		"normal_systolic": 110, "normal_diastolic": 70,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile = decode[models.Profile](t, rec)
	assert.Equal(t, 110, profile.Baseline.Systolic)
	assert.Equal(t, 70, profile.Baseline.Diastolic)

	rec = env.do(t, http.MethodPut, "/pressiotrack/atualizarPerfil", token, gin.H{
		"name": "P", "email": "p@example.com", "phone": "2", "normal_systolic": 110,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

var inviteTokenRe = regexp.MustCompile(`token=([A-Za-z0-9_.-]+)`)

func (e *testEnv) lastToken(t *testing.T) string {
	t.Helper()

	e.notifier.Wait()
	sent := e.sender.Sent()
	require.NotEmpty(t, sent)

	m := inviteTokenRe.FindStringSubmatch(sent[len(sent)-1].HTML)
	require.Len(t, m, 2)

	return m[1]
}

func TestAssociationFlow(t *testing.T) {
	env := newTestEnv(t)
	patientID, patient := env.register(t, "p@example.com", models.RolePatient)
	caregiverID, caregiver := env.register(t, "c@example.com", models.RoleCaregiver)
	env.register(t, "r@example.com", models.RoleCaregiver)

	readingsPath := fmt.Sprintf("/pressiotrack/%d", patientID)

	rec := env.do(t, http.MethodPost, "/pressiotrack/associacao/solicitar", patient, gin.H{"caregiver_email": "c@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "token", "the invitation is only delivered by email")

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, readingsPath, caregiver, nil).Code)

	token := env.lastToken(t)
	rec = env.do(t, http.MethodPost, "/pressiotrack/associacao/confirmar", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, readingsPath, caregiver, nil).Code)

	rec = env.do(t, http.MethodGet, "/pressiotrack/associacao/pacientes", caregiver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	patients := decode[[]models.PatientSummary](t, rec)
	require.Len(t, patients, 1)
	assert.Equal(t, patientID, patients[0].ID)

	rec = env.do(t, http.MethodPost, "/pressiotrack/associacao/solicitar", patient, gin.H{"caregiver_email": "r@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, caregiverID, decode[alreadyLinkedResponse](t, rec).CaregiverID)

	rec = env.do(t, http.MethodPost, "/pressiotrack/associacao/confirmar", "", gin.H{"token": token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired token", decode[errorResponse](t, rec).Message)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/pressiotrack/associacao/remover", patient, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, readingsPath, caregiver, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/pressiotrack/999", caregiver, nil).Code)
}

func TestUnknownCaregiverIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, patient := env.register(t, "p@example.com", models.RolePatient)

	rec := env.do(t, http.MethodPost, "/pressiotrack/associacao/solicitar", patient, gin.H{"caregiver_email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "p@example.com", models.RolePatient)

	rec := env.do(t, http.MethodPost, "/pressiotrack/forgot", "", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/pressiotrack/forgot", "", gin.H{"email": "p@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	token := env.lastToken(t)
	rec = env.do(t, http.MethodPost, "/pressiotrack/reset", "", gin.H{"token": token, "password": "brand-new"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/pressiotrack/login", "", gin.H{"email": "p@example.com", "password": "brand-new"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	adminID, _ := env.register(t, "admin@example.com", models.RolePatient)
	userID, _ := env.register(t, "u@example.com", models.RolePatient)
	require.NoError(t, env.storage.AssignRole(t.Context(), adminID, models.RoleAdmin))

	rec := env.do(t, http.MethodPost, "/pressiotrack/login", "", gin.H{"email": "admin@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	admin := decode[sessionResponse](t, rec).Token

	rec = env.do(t, http.MethodGet, "/pressiotrack/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 2)

	rec = env.do(t, http.MethodPost, "/pressiotrack/admin/roles/assign", admin, gin.H{"user_id": userID, "role": "caregiver"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/pressiotrack/admin/roles/assign", admin, gin.H{"user_id": userID, "role": "ROOT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	user, err := env.storage.GetUserByID(t.Context(), userID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCaregiver, user.Role)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "p@example.com", models.RolePatient)
	env.do(t, http.MethodPost, "/pressiotrack/inserir", token, gin.H{"systolic": 120, "diastolic": 80})

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pressiotrack_readings_classified_total{status="NORMAL"} 1`)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/pressiotrack/login", nil)
	req.Header.Set("Origin", "http://front.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://front.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
