package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nqd2/bluemoon-admin-gateway/internal/gate"
	"github.com/nqd2/bluemoon-admin-gateway/internal/identity"
	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
)

type stubAuthenticator struct {
	seed *session.Seed
	err  error

	gotUsername string
	gotPassword string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, username, password string) (*session.Seed, error) {
	s.gotUsername = username
	s.gotPassword = password
	if s.err != nil {
		return nil, s.err
	}
	return s.seed, nil
}

func newTestHandler(authn Authenticator) (*AuthHandler, *session.Codec) {
	codec := session.NewCodec("handler-test-secret", session.DefaultPolicy())
	cookie := session.CookieConfig{Name: "admin_session", MaxAge: 48 * time.Hour}
	return NewAuthHandler(authn, codec, cookie), codec
}

func performLogin(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/auth/login", h.Login)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	authn := &stubAuthenticator{seed: &session.Seed{
		SubjectID:   "u-42",
		Username:    "manager01",
		Role:        session.RoleAdmin,
		AccessToken: "bearer-xyz",
	}}
	h, codec := newTestHandler(authn)

	w := performLogin(t, h, `{"username":"manager01","password":"secret123"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if authn.gotUsername != "manager01" || authn.gotPassword != "secret123" {
		t.Errorf("credentials forwarded as (%q, %q)", authn.gotUsername, authn.gotPassword)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			User      UserResponse `json:"user"`
			ExpiresIn int64        `json:"expiresIn"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.Data.User.ID != "u-42" || resp.Data.User.Role != "admin" {
		t.Errorf("user = %+v", resp.Data.User)
	}
	if want := int64(48 * 3600); resp.Data.ExpiresIn != want {
		t.Errorf("expiresIn = %d, want %d", resp.Data.ExpiresIn, want)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != "admin_session" {
		t.Errorf("cookie name = %q", ck.Name)
	}
	if !ck.HttpOnly {
		t.Error("cookie is not HTTP-only")
	}
	rec, err := codec.Decode(ck.Value)
	if err != nil {
		t.Fatalf("minted cookie does not decode: %v", err)
	}
	if rec.SubjectID != "u-42" || rec.AccessToken != "bearer-xyz" {
		t.Errorf("decoded record = %+v", rec)
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	h, _ := newTestHandler(&stubAuthenticator{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "username=manager01"},
		{"missing password", `{"username":"manager01"}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performLogin(t, h, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h, _ := newTestHandler(&stubAuthenticator{err: identity.ErrInvalidCredentials})

	w := performLogin(t, h, `{"username":"manager01","password":"wrong"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("failed login must not set a cookie")
	}
	if !strings.Contains(w.Body.String(), "INVALID_CREDENTIALS") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestLogin_CarriesBackendMessage(t *testing.T) {
	backendErr := identity.ErrInvalidCredentials
	h, _ := newTestHandler(&stubAuthenticator{
		err: wrapMessage(backendErr, "Account is locked"),
	})

	w := performLogin(t, h, `{"username":"manager01","password":"secret123"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Account is locked") {
		t.Errorf("backend message not surfaced: %s", w.Body.String())
	}
}

func TestLogin_BackendUnavailable(t *testing.T) {
	h, _ := newTestHandler(&stubAuthenticator{err: identity.ErrBackendUnavailable})

	w := performLogin(t, h, `{"username":"manager01","password":"secret123"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "BACKEND_UNAVAILABLE") {
		t.Errorf("body = %s", w.Body.String())
	}
	// Internals never leak.
	if strings.Contains(w.Body.String(), "backend unavailable") {
		t.Errorf("raw error leaked into response: %s", w.Body.String())
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	h, _ := newTestHandler(&stubAuthenticator{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/auth/logout", h.Logout)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1 deletion", len(cookies))
	}
	if ck := cookies[0]; ck.MaxAge >= 0 || ck.Value != "" {
		t.Errorf("cookie not deleted: MaxAge=%d Value=%q", ck.MaxAge, ck.Value)
	}
}

func TestMe(t *testing.T) {
	h, _ := newTestHandler(&stubAuthenticator{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/auth/me", func(c *gin.Context) {
		c.Set(gate.ContextKeySession, &session.Record{
			SubjectID:   "u-42",
			Username:    "manager01",
			Role:        session.RoleAdmin,
			AccessToken: "bearer-xyz",
			IssuedAt:    time.Now().Add(-time.Hour),
			ExpiresAt:   time.Now().Add(47 * time.Hour),
		})
	}, h.Me)
	router.GET("/anon/me", h.Me)

	t.Run("authenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), "manager01") {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("no session", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anon/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func wrapMessage(sentinel error, msg string) error {
	return &wrappedErr{sentinel: sentinel, msg: msg}
}

type wrappedErr struct {
	sentinel error
	msg      string
}

func (e *wrappedErr) Error() string { return e.sentinel.Error() + ": " + e.msg }
func (e *wrappedErr) Unwrap() error { return e.sentinel }
