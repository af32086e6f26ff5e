package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/app"
	iauth "github.com/campusworks/interndocs/internal/auth"
	"github.com/campusworks/interndocs/internal/database/testutil"
	"github.com/campusworks/interndocs/internal/middleware"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/notifications"
	"github.com/campusworks/interndocs/internal/services"
	"github.com/campusworks/interndocs/internal/storage"
	"github.com/campusworks/interndocs/pkg/crypto"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
		Total   int `json:"total"`
	} `json:"meta"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	cfg.Auth.JWT.Secret = "router-test-secret"
	cfg.Storage.Local.Directory = t.TempDir()
	cfg.Monitoring.Prometheus.Enabled = false
	cfg.RateLimit.General.Max = 1000
	cfg.RateLimit.Login.Max = 5
	cfg.RateLimit.Upload.Max = 100

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		Secret: cfg.Auth.JWT.Secret,
		Issuer: cfg.Auth.JWT.Issuer,
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	blobs, err := storage.NewLocalStore(cfg.Storage.Local.Directory)
	require.NoError(t, err)

	hub := notifications.NewHub()

	notifSvc, err := services.NewNotificationService(db, hub, nil)
	require.NoError(t, err)
	docSvc, err := services.NewDocumentService(db, blobs, notifSvc)
	require.NoError(t, err)
	logSvc, err := services.NewVerificationLogService(db)
	require.NoError(t, err)
	userSvc, err := services.NewUserService(db, tokens)
	require.NoError(t, err)

	router, err := NewRouter(Deps{
		DB:            db,
		Config:        cfg,
		Tokens:        tokens,
		Hub:           hub,
		RateStore:     middleware.NewMemoryRateStore(),
		Users:         userSvc,
		Documents:     docSvc,
		Logs:          logSvc,
		Notifications: notifSvc,
	})
	require.NoError(t, err)

	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func registerAndLogin(t *testing.T, router *gin.Engine, email string) string {
	t.Helper()

	rec, _ := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"password": "strong-password",
		"name":     "Test Intern",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	return login(t, router, email, "strong-password")
}

func login(t *testing.T, router *gin.Engine, email, password string) string {
	t.Helper()

	rec, env := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var payload struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.NotEmpty(t, payload.Token)
	return payload.Token
}

func seedStaff(t *testing.T, db *gorm.DB, email string, role models.Role) {
	t.Helper()

	hashed, err := crypto.HashPassword("staff-password")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{
		Email:    email,
		Password: hashed,
		Role:     role,
		IsActive: true,
	}).Error)
}

func uploadDocument(t *testing.T, router *gin.Engine, token, docType string) envelope {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "scan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("type", docType))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	router, db := newTestRouter(t)

	internToken := registerAndLogin(t, router, "intern@example.com")
	seedStaff(t, db, "hr@example.com", models.RoleHR)
	hrToken := login(t, router, "hr@example.com", "staff-password")

	env := uploadDocument(t, router, internToken, "CV")

	var doc struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	require.Equal(t, "pending", doc.Status)

	// A second active CV is refused.
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "scan2.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("other"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("type", "CV"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+internToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	// The intern cannot approve their own document.
	rec, _ = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/documents/%s/verify", doc.ID), internToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// HR approves it.
	rec, env = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/documents/%s/verify", doc.ID), hrToken, gin.H{"comments": "all good"})
	require.Equal(t, http.StatusOK, rec.Code)
	var approved struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.Equal(t, "verified", approved.Status)

	// Approving again conflicts.
	rec, env = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/documents/%s/verify", doc.ID), hrToken, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	// The trail shows upload then approve.
	rec, env = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/documents/%s/history", doc.ID), internToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	require.Equal(t, "upload", events[0].Action)
	require.Equal(t, "approve", events[1].Action)

	// The owner was notified of the approval.
	rec, env = doJSON(t, router, http.MethodGet, "/api/notifications?unread=true", internToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &notifs))
	require.Len(t, notifs, 1)
	require.Equal(t, "document_verified", notifs[0].Type)
}

func TestDownloadOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	internToken := registerAndLogin(t, router, "intern@example.com")
	env := uploadDocument(t, router, internToken, "INSURANCE")

	var doc struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/documents/%s/download", doc.ID), nil)
	req.Header.Set("Authorization", "Bearer "+internToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pdf bytes", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "scan.pdf")

	// Another intern cannot fetch it.
	otherToken := registerAndLogin(t, router, "other@example.com")
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/documents/%s/download", doc.ID), nil)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStaffOnlyRoutes(t *testing.T) {
	router, db := newTestRouter(t)

	internToken := registerAndLogin(t, router, "intern@example.com")
	seedStaff(t, db, "hr@example.com", models.RoleHR)
	seedStaff(t, db, "admin@example.com", models.RoleSuperAdmin)
	hrToken := login(t, router, "hr@example.com", "staff-password")
	adminToken := login(t, router, "admin@example.com", "staff-password")

	rec, _ := doJSON(t, router, http.MethodGet, "/api/documents", internToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/documents", hrToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/users/interns", hrToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deactivation is staff only; role rules beyond that live in the service.
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/users/any-id", internToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Purge is super admin only.
	env := uploadDocument(t, router, internToken, "CV")
	var doc struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))

	rec, _ = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/documents/%s/purge", doc.ID), hrToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/documents/%s/purge", doc.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListPaginationClampsPerPage(t *testing.T) {
	router, db := newTestRouter(t)

	internToken := registerAndLogin(t, router, "intern@example.com")
	seedStaff(t, db, "hr@example.com", models.RoleHR)
	hrToken := login(t, router, "hr@example.com", "staff-password")

	uploadDocument(t, router, internToken, "CV")

	for _, path := range []string{
		"/api/documents?per_page=0",
		"/api/documents?per_page=-5&page=0",
		"/api/documents?per_page=100000",
		"/api/documents/events?per_page=0",
	} {
		rec, env := doJSON(t, router, http.MethodGet, path, hrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.True(t, env.Success, path)
		require.NotNil(t, env.Meta, path)
		require.Equal(t, 50, env.Meta.PerPage, path)
		require.Equal(t, 1, env.Meta.Page, path)
	}
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	registerAndLogin(t, router, "intern@example.com")

	for i := 0; i < 5; i++ {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
			"email":    "intern@example.com",
			"password": "wrong-password",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// The sixth attempt is rejected before credentials are checked.
	rec, env := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "intern@example.com",
		"password": "strong-password",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
}

func TestUnknownRouteEnvelope(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := doJSON(t, router, http.MethodGet, "/api/unknown", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, env.Success)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, env := doJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
}
