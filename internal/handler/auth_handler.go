package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nqd2/bluemoon-admin-gateway/internal/gate"
	"github.com/nqd2/bluemoon-admin-gateway/internal/identity"
	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
	"github.com/nqd2/bluemoon-admin-gateway/pkg/response"
)

// Authenticator exchanges credentials for a session seed.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*session.Seed, error)
}

// AuthHandler owns the login/logout surface: it is the only place a session
// cookie is minted, and logout is a fire-and-forget cookie deletion with no
// backend notification.
type AuthHandler struct {
	authn  Authenticator
	codec  *session.Codec
	cookie session.CookieConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authn Authenticator, codec *session.Codec, cookie session.CookieConfig) *AuthHandler {
	return &AuthHandler{authn: authn, codec: codec, cookie: cookie}
}

// LoginRequest is the login form payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the identity slice returned to the UI after login.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login handles the login submission
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "username and password are required")
		return
	}

	seed, err := h.authn.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", credentialsMessage(err), "")
			return
		}
		// Transport and backend failures all collapse into one generic
		// retry-later message; internals never reach the user.
		response.Error(c, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "Unable to sign in right now, please try again later", "")
		return
	}

	token, err := h.codec.Encode(seed)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	session.WriteCookie(c, h.cookie, token)

	response.Success(c, gin.H{
		"user": UserResponse{
			ID:       seed.SubjectID,
			Username: seed.Username,
			Role:     string(seed.Role),
		},
		"expiresIn": int64(h.codec.Policy().DurationForRole(seed.Role) / time.Second),
	})
}

// Logout deletes the session cookie
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	session.ClearCookie(c, h.cookie)
	response.Success(c, gin.H{"message": "Logged out successfully"})
}

// Me returns the identity of the current session
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	rec, ok := gate.RecordFromContext(c)
	if !ok || !rec.Valid() {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	response.Success(c, gin.H{
		"user": UserResponse{
			ID:       rec.SubjectID,
			Username: rec.Username,
			Role:     string(rec.Role),
		},
		"issuedAt":  rec.IssuedAt.UTC().Format(time.RFC3339),
		"expiresAt": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// credentialsMessage surfaces the backend's own message when it sent one,
// otherwise the generic text.
func credentialsMessage(err error) string {
	msg := err.Error()
	prefix := identity.ErrInvalidCredentials.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return "Invalid username or password"
}
