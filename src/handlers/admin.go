package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linq/waitlist/src/logging"
	"github.com/linq/waitlist/src/middleware"
	"github.com/linq/waitlist/src/services"
)

// AdminHandler handles admin login, session and password operations
type AdminHandler struct {
	guard        *services.AccountGuard
	tokens       *middleware.TokenManager
	analytics    *services.AnalyticsService
	secureCookie bool
	now          func() time.Time
}

// NewAdminHandler creates a new admin handler. analytics may be nil.
func NewAdminHandler(guard *services.AccountGuard, tokens *middleware.TokenManager, analytics *services.AnalyticsService, secureCookie bool) *AdminHandler {
	return &AdminHandler{
		guard:        guard,
		tokens:       tokens,
		analytics:    analytics,
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

// AdminLoginRequest represents the request body for admin login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse represents the response for successful login
type AdminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// LockedResponse is returned while an account is locked out
type LockedResponse struct {
	Error       string `json:"error"`
	LockedUntil string `json:"locked_until"`
}

// HandleAdminLogin authenticates admin user and returns JWT token
func (ah *AdminHandler) HandleAdminLogin(c *gin.Context) {
	logger := logging.ComponentLogger("admin_handler", middleware.GetRequestID(c))

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
		})
		return
	}

	account, err := ah.guard.VerifyLogin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		var lockout *services.LockoutError
		switch {
		case errors.As(err, &lockout):
			retryAfter := int(lockout.LockedUntil.Sub(ah.now()).Seconds()) + 1
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
			c.JSON(http.StatusLocked, LockedResponse{
				Error:       "account locked",
				LockedUntil: lockout.LockedUntil.UTC().Format(time.RFC3339),
			})
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid username or password",
			})
		default:
			logger.Error().Err(err).Msg("login failed on store error")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "login temporarily unavailable",
			})
		}
		return
	}

	token, expiresAt, err := ah.tokens.GenerateAdminToken(account.Username)
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to generate token",
		})
		return
	}

	if ah.analytics != nil {
		ah.analytics.TrackAdminLogin(c.Request.Context(), account.Username)
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		middleware.AdminTokenCookie,
		token,
		int(middleware.SessionTTL.Seconds()),
		"/",
		"",
		ah.secureCookie,
		true, // HttpOnly
	)

	c.JSON(http.StatusOK, AdminLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
	})
}

// HandleAdminLogout clears the admin token cookie
func (ah *AdminHandler) HandleAdminLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		middleware.AdminTokenCookie,
		"",
		-1,
		"/",
		"",
		ah.secureCookie,
		true, // HttpOnly
	)

	c.JSON(http.StatusOK, gin.H{
		"status": "logged out",
	})
}

// AdminStatusResponse represents the response for admin status check
type AdminStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username"`
}

// HandleAdminStatus returns the current admin authentication status
func (ah *AdminHandler) HandleAdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, AdminStatusResponse{
		Authenticated: true,
		Username:      middleware.GetUsername(c),
	})
}

// minPasswordLength applies after surrounding whitespace is trimmed
const minPasswordLength = 8

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// HandleChangePassword replaces the authenticated admin's password
func (ah *AdminHandler) HandleChangePassword(c *gin.Context) {
	logger := logging.ComponentLogger("admin_handler", middleware.GetRequestID(c))

	var req ChangePasswordRequest
	err := c.ShouldBindJSON(&req)
	if err == nil && len(strings.TrimSpace(req.NewPassword)) < minPasswordLength {
		err = errors.New("new_password too short")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: new_password must be at least 8 characters",
		})
		return
	}

	err = ah.guard.ChangePassword(c.Request.Context(), middleware.GetUsername(c), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status": "password changed",
		})
	case errors.Is(err, services.ErrInvalidCurrentPassword):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "current password is incorrect",
		})
	case errors.Is(err, services.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "account not found",
		})
	default:
		logger.Error().Err(err).Msg("failed to change password")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to change password",
		})
	}
}
