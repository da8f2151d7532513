package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieConfig describes how the session cookie is written. The Max-Age is
// the fixed outer lifetime (longest role duration); the record's own expiry
// is the real gate.
type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// WriteCookie stores a signed session token as an HTTP-only, SameSite=Lax
// cookie on the response.
func WriteCookie(c *gin.Context, cfg CookieConfig, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, token, int(cfg.MaxAge.Seconds()), "/", "", cfg.Secure, true)
}

// ClearCookie deletes the session cookie. Used on logout and defensively
// whenever a stored cookie fails to decode (rotated secret, truncation).
func ClearCookie(c *gin.Context, cfg CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, "", -1, "/", "", cfg.Secure, true)
}

// TokenFromRequest extracts the raw session token from the request cookie.
func TokenFromRequest(c *gin.Context, name string) (string, bool) {
	token, err := c.Cookie(name)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}
