package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nqd2/bluemoon-admin-gateway/internal/session"
)

func TestAuthenticate_FlatResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"token":"bearer-xyz","user":{"id":"u-42","username":"manager01","role":"admin"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	seed, err := client.Authenticate(context.Background(), "manager01", "secret123")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if seed.SubjectID != "u-42" {
		t.Errorf("SubjectID = %q, want u-42", seed.SubjectID)
	}
	if seed.Username != "manager01" {
		t.Errorf("Username = %q, want manager01", seed.Username)
	}
	if seed.Role != session.RoleAdmin {
		t.Errorf("Role = %q, want admin", seed.Role)
	}
	if seed.AccessToken != "bearer-xyz" {
		t.Errorf("AccessToken = %q, want bearer-xyz", seed.AccessToken)
	}
}

func TestAuthenticate_WrappedResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"token":"bearer-abc","user":{"_id":"64fa1c2b","username":"resident9","role":"user"}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	seed, err := client.Authenticate(context.Background(), "resident9", "secret123")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if seed.SubjectID != "64fa1c2b" {
		t.Errorf("SubjectID = %q, want mongo-style _id 64fa1c2b", seed.SubjectID)
	}
	if seed.Role != session.RoleUser {
		t.Errorf("Role = %q, want user", seed.Role)
	}
	if seed.AccessToken != "bearer-abc" {
		t.Errorf("AccessToken = %q, want bearer-abc", seed.AccessToken)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"Wrong username or password"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Authenticate(context.Background(), "manager01", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
	// The backend's own message is carried for the UI to surface.
	if !strings.Contains(err.Error(), "Wrong username or password") {
		t.Errorf("error %q does not carry the backend message", err)
	}
}

func TestAuthenticate_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	if _, err := client.Authenticate(context.Background(), "manager01", "secret123"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Authenticate() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestAuthenticate_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, time.Second)
	if _, err := client.Authenticate(context.Background(), "manager01", "secret123"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Authenticate() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestAuthenticate_IncompleteSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", `{"success":true,"user":{"id":"u-1","username":"x","role":"admin"}}`},
		{"missing identity", `{"success":true,"token":"bearer-xyz"}`},
		{"missing role", `{"success":true,"token":"bearer-xyz","user":{"id":"u-1","username":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, 5*time.Second)
			if _, err := client.Authenticate(context.Background(), "manager01", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestAuthenticate_UndecodableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	if _, err := client.Authenticate(context.Background(), "manager01", "secret123"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Authenticate() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestAuthenticate_EmptyFields(t *testing.T) {
	client := NewClient("http://localhost:0", time.Second)

	if _, err := client.Authenticate(context.Background(), "", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("empty username: error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := client.Authenticate(context.Background(), "manager01", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("empty password: error = %v, want ErrInvalidCredentials", err)
	}
}
