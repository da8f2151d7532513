package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid session token")
	ErrIncompleteSeed = errors.New("incomplete session seed")
)

// Codec signs session records into compact JWTs and reverses the process.
// Decode never panics: any signature or structural failure comes back as an
// error and the caller treats the request as unauthenticated.
type Codec struct {
	secret []byte
	policy *Policy
	now    func() time.Time
}

// NewCodec creates a codec. The secret must be non-empty; config validation
// enforces that before the process gets this far.
func NewCodec(secret string, policy *Policy) *Codec {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Codec{
		secret: []byte(secret),
		policy: policy,
		now:    time.Now,
	}
}

// Policy returns the role-expiry policy the codec was built with.
func (c *Codec) Policy() *Policy {
	return c.policy
}

// Encode stamps IssuedAt with the current clock and signs the seed with
// HS256. Re-authentication always mints a fresh token with a fresh IssuedAt;
// there is no refresh-in-place.
func (c *Codec) Encode(seed *Seed) (string, error) {
	if seed == nil || seed.SubjectID == "" || seed.AccessToken == "" || seed.Role == "" {
		return "", ErrIncompleteSeed
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          seed.SubjectID,
		"username":     seed.Username,
		"role":         string(seed.Role),
		"access_token": seed.AccessToken,
		"iat":          now.Unix(),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and rebuilds the record. Expiry is
// recomputed on every call from IssuedAt and the role policy; it is never
// cached inside the token. Tokens minted by older revisions may carry an
// `exp` claim, which is honored as an independent second gate.
func (c *Codec) Decode(tokenString string) (*Record, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	// Claims are validated by hand below: an expired session must still
	// decode into a record so the edge can tell "expired" from "absent".
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	iat, ok := numericClaim(claims, "iat")
	if !ok {
		return nil, fmt.Errorf("%w: missing iat", ErrInvalidToken)
	}
	issuedAt := time.Unix(iat, 0)

	rec := &Record{
		SubjectID:   stringClaim(claims, "sub"),
		Username:    stringClaim(claims, "username"),
		Role:        Role(stringClaim(claims, "role")),
		AccessToken: stringClaim(claims, "access_token"),
		IssuedAt:    issuedAt,
	}

	now := c.now()
	rec.ExpiresAt = issuedAt.Add(c.policy.DurationForRole(rec.Role))
	rec.Expired = now.After(rec.ExpiresAt)

	if exp, ok := numericClaim(claims, "exp"); ok {
		if now.Unix() > exp {
			rec.Expired = true
		}
	}

	return rec, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
