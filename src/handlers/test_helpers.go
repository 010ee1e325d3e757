package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linq/waitlist/src/middleware"
	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories/mock"
	"github.com/linq/waitlist/src/services"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Test helpers for handler tests

const testJWTSecret = "test-secret-for-unit-tests-32ch!"

// testEnv bundles a router wired to in-memory stores
type testEnv struct {
	router      *gin.Engine
	accounts    *mock.AccountStore
	subscribers *mock.SubscriberRepository
	tokens      *middleware.TokenManager
	now         time.Time
}

// newTestEnv builds the admin and subscriber routes over mock stores with
// an "admin" account whose password is "correct-horse"
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		accounts:    mock.NewAccountStore(),
		subscribers: mock.NewSubscriberRepository(),
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	hasher := services.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	env.accounts.Put(models.AdminAccount{Username: "admin", PasswordHash: hash})

	env.tokens, err = middleware.NewTokenManager(testJWTSecret)
	require.NoError(t, err)

	guard := services.NewAccountGuard(env.accounts, hasher, services.WithClock(func() time.Time { return env.now }))
	admin := NewAdminHandler(guard, env.tokens, nil, false)
	admin.now = func() time.Time { return env.now }
	subs := NewSubscriberHandler(services.NewSubscriberService(env.subscribers, nil, nil))

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	api := router.Group("/api")
	api.POST("/subscribe", subs.HandleSubscribe)
	api.POST("/admin/login", admin.HandleAdminLogin)

	protected := api.Group("")
	protected.Use(middleware.AdminAuthMiddleware(env.tokens))
	protected.POST("/admin/logout", admin.HandleAdminLogout)
	protected.GET("/admin/status", admin.HandleAdminStatus)
	protected.POST("/admin/password", admin.HandleChangePassword)
	protected.GET("/subscribers", subs.HandleListSubscribers)

	env.router = router
	return env
}

// do sends a JSON request, with a bearer token when token is not empty
func (env *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// login returns a session token for the admin account
func (env *testEnv) login(t *testing.T) string {
	t.Helper()
	token, _, err := env.tokens.GenerateAdminToken("admin")
	require.NoError(t, err)
	return token
}

// createTestContext creates a test Gin context with recorder
func createTestContext() (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return w, c
}

// assertStatusCode checks if response status code matches expected
func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode int) {
	t.Helper()
	if w.Code != expectedCode {
		t.Errorf("expected status %d, got %d: %s", expectedCode, w.Code, w.Body.String())
	}
}

// assertJSONError checks if response contains expected error message
func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedError string) {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["error"] != expectedError {
		t.Errorf("expected error '%s', got '%v'", expectedError, response["error"])
	}
}

