package session

import (
	"time"
)

// Role is the role the condo backend assigned to the logged-in user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Policy maps roles to session validity windows. Admin sessions stay
// convenient for day-to-day management work; everything else gets a short
// window to limit the blast radius of a leaked token.
type Policy struct {
	ttl        map[Role]time.Duration
	defaultTTL time.Duration
}

// NewPolicy creates a role-expiry policy. Roles not present in the table
// fall back to defaultTTL.
func NewPolicy(adminTTL, defaultTTL time.Duration) *Policy {
	return &Policy{
		ttl: map[Role]time.Duration{
			RoleAdmin: adminTTL,
		},
		defaultTTL: defaultTTL,
	}
}

// DefaultPolicy returns the stock policy: 48h for admins, 1h for everyone else.
func DefaultPolicy() *Policy {
	return NewPolicy(48*time.Hour, time.Hour)
}

// DurationForRole returns the validity window for a role.
func (p *Policy) DurationForRole(role Role) time.Duration {
	if d, ok := p.ttl[role]; ok {
		return d
	}
	return p.defaultTTL
}

// MaxDuration returns the longest window in the table. The cookie's outer
// Max-Age uses this; the per-record expiry is the real gate.
func (p *Policy) MaxDuration() time.Duration {
	max := p.defaultTTL
	for _, d := range p.ttl {
		if d > max {
			max = d
		}
	}
	return max
}

// Seed is what a successful authentication against the condo backend yields.
// The codec stamps IssuedAt when it turns a seed into a signed token.
type Seed struct {
	SubjectID   string
	Username    string
	Role        Role
	AccessToken string
}

// Record is the decoded, signature-verified session carried by the cookie.
type Record struct {
	SubjectID   string
	Username    string
	Role        Role
	AccessToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Expired     bool
}

// WellFormed reports whether the record carries everything a session needs.
// A record missing subject, backend token, or role must be treated as absent.
func (r *Record) WellFormed() bool {
	if r == nil {
		return false
	}
	return r.SubjectID != "" && r.AccessToken != "" && r.Role != ""
}

// Valid reports whether the record is well-formed and not expired.
func (r *Record) Valid() bool {
	return r.WellFormed() && !r.Expired
}
