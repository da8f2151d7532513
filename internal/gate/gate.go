// Package gate holds the edge access decision: the pure function consulted
// on every inbound request to allow it through, bounce it to the login page,
// or push an already-authenticated user off the auth pages.
package gate

import (
	"strings"

	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
)

// Action is the outcome kind of an access decision.
type Action int

const (
	ActionAllow Action = iota
	ActionRedirectLogin
	ActionRedirectDashboard
)

// Decision is the outcome of evaluating one request at the edge.
// ReturnPath is only meaningful for login redirects: when non-empty the
// original path is attached as callbackUrl so the user lands back where
// they were headed.
type Decision struct {
	Action     Action
	ReturnPath string
}

// Rules is the path policy the decision function runs against. It is plain
// configuration: no network, no clock, no mutation.
type Rules struct {
	// PublicPrefixes are reachable without a session.
	PublicPrefixes []string
	// EntryPrefixes are the login/registration entry pages an authenticated
	// user gets redirected away from.
	EntryPrefixes []string
	LoginPath     string
	DashboardPath string
}

// DefaultRules mirrors the dashboard's public surface.
func DefaultRules() *Rules {
	return &Rules{
		PublicPrefixes: []string{"/login", "/register", "/forgot", "/api/auth", "/health", "/ready"},
		EntryPrefixes:  []string{"/login", "/register"},
		LoginPath:      "/login",
		DashboardPath:  "/dashboard",
	}
}

// Decide evaluates a request path against the decoded session (nil means no
// usable cookie). Pure by construction so it can run on every request.
// Decode failures upstream must be passed in as nil: fail closed, never open.
func (r *Rules) Decide(path string, rec *session.Record) Decision {
	if r.isPublic(path) {
		// An authenticated user re-visiting the login or registration page
		// belongs on the dashboard instead.
		if rec.Valid() && r.isEntry(path) {
			return Decision{Action: ActionRedirectDashboard}
		}
		return Decision{Action: ActionAllow}
	}

	// The bare root is a login entry even though it is not public: an
	// authenticated user landing there belongs on the dashboard.
	if rec.Valid() && r.isEntry(path) {
		return Decision{Action: ActionRedirectDashboard}
	}

	if rec == nil {
		return Decision{Action: ActionRedirectLogin, ReturnPath: r.returnTarget(path)}
	}

	if !rec.WellFormed() {
		// Partially-populated sessions are treated as absent.
		return Decision{Action: ActionRedirectLogin, ReturnPath: r.returnTarget(path)}
	}

	if rec.Expired {
		// Hard logout: no return target on expiry.
		return Decision{Action: ActionRedirectLogin}
	}

	return Decision{Action: ActionAllow}
}

func (r *Rules) isPublic(path string) bool {
	for _, p := range r.PublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (r *Rules) isEntry(path string) bool {
	if path == "/" {
		return true
	}
	for _, p := range r.EntryPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// returnTarget decides whether the original path may ride along as
// callbackUrl. Login-family paths would loop, API paths would leak, and the
// bare root adds nothing.
func (r *Rules) returnTarget(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	if r.isEntry(path) {
		return ""
	}
	if strings.HasPrefix(path, "/api") {
		return ""
	}
	return path
}
