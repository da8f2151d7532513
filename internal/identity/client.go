// Package identity exchanges username/password credentials with the condo
// backend for a bearer token and a minimal identity record. It is the only
// component that performs network I/O on the auth path, and it runs from the
// login submission only, never from the per-request gate.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
)

var (
	// ErrInvalidCredentials covers anything the user can correct:
	// wrong username/password, or a login response the backend itself
	// marked as a failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBackendUnavailable covers transport failures and backend errors.
	// Callers surface a generic retry-later message, never the raw cause.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Client talks to the condo backend's login endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an identity client for the given backend base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginUser struct {
	ID       string `json:"id"`
	MongoID  string `json:"_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// loginResponse tolerates both response shapes the backend has shipped:
// a flat {success, token, user:{...}} and a wrapped {data:{token, user}}.
type loginResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Token   string     `json:"token"`
	ID      string     `json:"id"`
	Role    string     `json:"role"`
	User    *loginUser `json:"user"`
	Data    *struct {
		Token string     `json:"token"`
		User  *loginUser `json:"user"`
	} `json:"data"`
}

func (r *loginResponse) token() string {
	if r.Token != "" {
		return r.Token
	}
	if r.Data != nil {
		return r.Data.Token
	}
	return ""
}

func (r *loginResponse) user() *loginUser {
	if r.User != nil {
		return r.User
	}
	if r.Data != nil && r.Data.User != nil {
		return r.Data.User
	}
	return nil
}

// Authenticate exchanges credentials for a session seed. It performs exactly
// one outbound call; a failed attempt is terminal and must be resubmitted by
// the user. No cookies are set and no state is mutated here.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*session.Seed, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidCredentials)
	}

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	var parsed loginResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: backend returned %d", ErrBackendUnavailable, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		// The backend distinguishes bad credentials from other client
		// errors only through its message; carry it when present.
		if decodeErr == nil && parsed.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, parsed.Message)
		}
		return nil, ErrInvalidCredentials
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: undecodable login response", ErrBackendUnavailable)
	}

	token := parsed.token()
	user := parsed.user()

	subjectID := parsed.ID
	role := parsed.Role
	name := username
	if user != nil {
		if user.ID != "" {
			subjectID = user.ID
		} else if user.MongoID != "" {
			subjectID = user.MongoID
		}
		if user.Role != "" {
			role = user.Role
		}
		if user.Username != "" {
			name = user.Username
		}
	}

	// Success-shaped but incomplete bodies are treated as failed logins.
	if token == "" || subjectID == "" || role == "" {
		return nil, ErrInvalidCredentials
	}

	return &session.Seed{
		SubjectID:   subjectID,
		Username:    name,
		Role:        session.Role(role),
		AccessToken: token,
	}, nil
}
