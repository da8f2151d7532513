package gate

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
)

const (
	// ContextKeySession is the gin context key the decoded record is stored
	// under for handlers and the backend proxy.
	ContextKeySession = "session_record"
	ContextKeyUserID  = "user_id"
	ContextKeyRole    = "user_role"
)

// CallbackParam carries the original path through a login redirect.
const CallbackParam = "callbackUrl"

var staticSuffixes = []string{".png", ".jpg", ".jpeg", ".svg", ".ico", ".css", ".js", ".woff", ".woff2"}

// isStaticAsset mirrors the dashboard matcher: assets never hit the gate.
func isStaticAsset(path string) bool {
	if strings.HasPrefix(path, "/assets/") || path == "/favicon.ico" {
		return true
	}
	for _, s := range staticSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// Middleware runs the access decision on every request. Decoding happens
// here, synchronously, with no network I/O; a cookie that fails to decode is
// deleted defensively and the request proceeds as unauthenticated.
func Middleware(codec *session.Codec, cookie session.CookieConfig, rules *Rules, log *zap.Logger) gin.HandlerFunc {
	if rules == nil {
		rules = DefaultRules()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isStaticAsset(path) {
			c.Next()
			return
		}

		var rec *session.Record
		if token, ok := session.TokenFromRequest(c, cookie.Name); ok {
			decoded, err := codec.Decode(token)
			if err != nil {
				// Rotated secret or truncated cookie: clear it so the
				// browser stops resending garbage, then fail closed.
				session.ClearCookie(c, cookie)
				log.Debug("session cookie failed to decode, cleared",
					zap.String("path", path),
					zap.Error(err),
				)
			} else {
				rec = decoded
			}
		}

		d := rules.Decide(path, rec)
		switch d.Action {
		case ActionRedirectDashboard:
			c.Redirect(http.StatusFound, rules.DashboardPath)
			c.Abort()
			return

		case ActionRedirectLogin:
			target := rules.LoginPath
			if d.ReturnPath != "" {
				target += "?" + CallbackParam + "=" + url.QueryEscape(d.ReturnPath)
			}
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}

		if rec.Valid() {
			c.Set(ContextKeySession, rec)
			c.Set(ContextKeyUserID, rec.SubjectID)
			c.Set(ContextKeyRole, string(rec.Role))
		}
		c.Next()
	}
}

// RecordFromContext returns the decoded session record stashed by the
// middleware, if the request carried a valid one.
func RecordFromContext(c *gin.Context) (*session.Record, bool) {
	v, ok := c.Get(ContextKeySession)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*session.Record)
	return rec, ok && rec != nil
}
