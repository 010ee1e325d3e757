package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func TestHandleAdminLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "correct-horse"}, "")
	assertStatusCode(t, w, http.StatusOK)

	var resp AdminLoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Greater(t, resp.ExpiresAt, time.Now().Unix())

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "admin_token="+resp.Token)
	assert.Contains(t, cookie, "HttpOnly")

	claims, err := env.tokens.ValidateAdminToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestHandleAdminLogin_InvalidCredentialsLookAlike(t *testing.T) {
	env := newTestEnv(t)

	wrong := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "nope"}, "")
	unknown := env.do(http.MethodPost, "/api/admin/login", credentials{"ghost", "nope"}, "")

	assertStatusCode(t, wrong, http.StatusUnauthorized)
	assertStatusCode(t, unknown, http.StatusUnauthorized)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Empty(t, wrong.Header().Get("Set-Cookie"))
}

func TestHandleAdminLogin_BadBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/admin/login", map[string]string{"username": "admin"}, "")
	assertStatusCode(t, w, http.StatusBadRequest)
	assertJSONError(t, w, "invalid request body")
}

func TestHandleAdminLogin_LockoutFlow(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 4; i++ {
		w := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "wrong"}, "")
		assertStatusCode(t, w, http.StatusUnauthorized)
	}

	fifth := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "wrong"}, "")
	assertStatusCode(t, fifth, http.StatusLocked)

	var locked LockedResponse
	require.NoError(t, json.Unmarshal(fifth.Body.Bytes(), &locked))
	assert.Equal(t, "2026-03-01T12:15:00Z", locked.LockedUntil)
	assert.Equal(t, "901", fifth.Header().Get("Retry-After"))

	// correct password does not help while locked
	env.now = env.now.Add(5 * time.Minute)
	w := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "correct-horse"}, "")
	assertStatusCode(t, w, http.StatusLocked)

	env.now = env.now.Add(11 * time.Minute)
	w = env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "correct-horse"}, "")
	assertStatusCode(t, w, http.StatusOK)

	account, err := env.accounts.Get(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, 0, account.FailedLoginAttempts)
	assert.Nil(t, account.LockedUntil)
}

func TestHandleAdminLogin_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.GetFunc = func(ctx context.Context, username string) (*models.AdminAccount, error) {
		return nil, errors.New("connection refused")
	}

	w := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "correct-horse"}, "")
	assertStatusCode(t, w, http.StatusInternalServerError)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHandleAdminStatus(t *testing.T) {
	env := newTestEnv(t)

	assertStatusCode(t, env.do(http.MethodGet, "/api/admin/status", nil, ""), http.StatusUnauthorized)

	w := env.do(http.MethodGet, "/api/admin/status", nil, env.login(t))
	assertStatusCode(t, w, http.StatusOK)

	var resp AdminStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "admin", resp.Username)
}

func TestHandleAdminLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/admin/logout", nil, env.login(t))
	assertStatusCode(t, w, http.StatusOK)

	cookie := w.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, "admin_token=;"), cookie)
	assert.Contains(t, cookie, "Max-Age=0")
}

func TestHandleChangePassword(t *testing.T) {
	type body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	t.Run("requires session", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", "battery-staple"}, "")
		assertStatusCode(t, w, http.StatusUnauthorized)
	})

	t.Run("short new password", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", "short"}, env.login(t))
		assertStatusCode(t, w, http.StatusBadRequest)
	})

	t.Run("whitespace-only new password", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", strings.Repeat(" ", 10)}, env.login(t))
		assertStatusCode(t, w, http.StatusBadRequest)

		blank := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", " "}, "")
		assertStatusCode(t, blank, http.StatusUnauthorized)
		old := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "correct-horse"}, "")
		assertStatusCode(t, old, http.StatusOK)
	})

	t.Run("padded new password is trimmed", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", "  short  "}, env.login(t))
		assertStatusCode(t, w, http.StatusBadRequest)
	})

	t.Run("wrong current password", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/password", body{"nope", "battery-staple"}, env.login(t))
		assertStatusCode(t, w, http.StatusUnauthorized)
		assertJSONError(t, w, "current password is incorrect")

		account, err := env.accounts.Get(context.Background(), "admin")
		require.NoError(t, err)
		assert.Equal(t, 0, account.FailedLoginAttempts, "does not count as a login failure")
	})

	t.Run("account gone", func(t *testing.T) {
		env := newTestEnv(t)
		token, _, err := env.tokens.GenerateAdminToken("ghost")
		require.NoError(t, err)

		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", "battery-staple"}, token)
		assertStatusCode(t, w, http.StatusNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.accounts.UpdateFunc = func(ctx context.Context, username string, mutate repositories.AccountMutation) (*models.AdminAccount, error) {
			return nil, errors.New("disk full")
		}

		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", "battery-staple"}, env.login(t))
		assertStatusCode(t, w, http.StatusInternalServerError)
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/admin/password", body{"correct-horse", "battery-staple"}, env.login(t))
		assertStatusCode(t, w, http.StatusOK)

		old := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "correct-horse"}, "")
		assertStatusCode(t, old, http.StatusUnauthorized)

		fresh := env.do(http.MethodPost, "/api/admin/login", credentials{"admin", "battery-staple"}, "")
		assertStatusCode(t, fresh, http.StatusOK)
	})
}
