// Package proxy forwards the dashboard's CRUD traffic (residents,
// apartments, fees, transactions, exports) to the condo backend, attaching
// the session's bearer token. The backend owns all business validation; this
// layer is pure passthrough.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nqd2/bluemoon-admin-gateway/internal/gate"
)

// RouteConfig holds configuration for one forwarded path prefix.
type RouteConfig struct {
	// PathPrefix triggers this route (e.g. "/api/residents")
	PathPrefix string
	// RequireAuth means a valid session must be present; its bearer token
	// is forwarded to the backend
	RequireAuth bool
	// Timeout overrides the default per-request timeout
	Timeout time.Duration
}

// Config holds the overall proxy configuration.
type Config struct {
	BackendURL     string
	DefaultTimeout time.Duration
	Routes         []RouteConfig
}

// DefaultRoutes covers the dashboard's data surface. Exports get a longer
// window because the backend renders Excel files synchronously.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{PathPrefix: "/api/auth/register", RequireAuth: false, Timeout: 10 * time.Second},
		{PathPrefix: "/api/auth/forgot", RequireAuth: false, Timeout: 10 * time.Second},
		{PathPrefix: "/api/residents", RequireAuth: true, Timeout: 15 * time.Second},
		{PathPrefix: "/api/apartments", RequireAuth: true, Timeout: 15 * time.Second},
		{PathPrefix: "/api/fees", RequireAuth: true, Timeout: 15 * time.Second},
		{PathPrefix: "/api/transactions", RequireAuth: true, Timeout: 15 * time.Second},
		{PathPrefix: "/api/stats", RequireAuth: true, Timeout: 15 * time.Second},
		{PathPrefix: "/api/statements", RequireAuth: true, Timeout: 15 * time.Second},
		{PathPrefix: "/api/export", RequireAuth: true, Timeout: 60 * time.Second},
		{PathPrefix: "/api/user", RequireAuth: true, Timeout: 10 * time.Second},
	}
}

// BackendProxy forwards matched requests to the condo backend.
type BackendProxy struct {
	config Config
	proxy  *httputil.ReverseProxy
	client *http.Client
	target *url.URL
}

// New creates a backend proxy.
func New(cfg Config) (*BackendProxy, error) {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}

	target, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", cfg.BackendURL, err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.Transport = transport

	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}

	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.Header().Set("Content-Type", "application/json")
		if isTimeoutError(err) {
			w.WriteHeader(http.StatusGatewayTimeout)
			io.WriteString(w, `{"success":false,"error":{"code":"GATEWAY_TIMEOUT","message":"Backend service timed out"}}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"success":false,"error":{"code":"BAD_GATEWAY","message":"Backend service unavailable"}}`)
	}

	return &BackendProxy{
		config: cfg,
		proxy:  rp,
		client: &http.Client{Transport: transport, Timeout: cfg.DefaultTimeout},
		target: target,
	}, nil
}

// findRoute finds the matching route for a request path.
func (p *BackendProxy) findRoute(path string) *RouteConfig {
	for i := range p.config.Routes {
		if strings.HasPrefix(path, p.config.Routes[i].PathPrefix) {
			return &p.config.Routes[i]
		}
	}
	return nil
}

// Handler returns a gin handler forwarding matched requests. The edge gate
// already redirected unauthenticated page traffic; the auth check here is a
// second, JSON-shaped line for direct API calls.
func (p *BackendProxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := p.findRoute(c.Request.URL.Path)
		if route == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ROUTE_NOT_FOUND",
					"message": "No route configured for this path",
				},
			})
			c.Abort()
			return
		}

		if route.RequireAuth {
			rec, ok := gate.RecordFromContext(c)
			if !ok || !rec.Valid() {
				c.JSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "UNAUTHORIZED",
						"message": "Authentication required",
					},
				})
				c.Abort()
				return
			}

			// The backend token is forwarded verbatim, never interpreted.
			c.Request.Header.Set("Authorization", "Bearer "+rec.AccessToken)
			c.Request.Header.Set("X-User-ID", rec.SubjectID)
			c.Request.Header.Set("X-User-Role", string(rec.Role))
		}

		if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
			c.Request.Header.Set("X-Request-ID", requestID)
		}

		timeout := route.Timeout
		if timeout == 0 {
			timeout = p.config.DefaultTimeout
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		p.proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// HealthCheck reports whether the condo backend answers its health endpoint.
func (p *BackendProxy) HealthCheck(ctx context.Context) error {
	healthURL := strings.TrimRight(p.config.BackendURL, "/") + "/api/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health check returned %d", resp.StatusCode)
	}
	return nil
}

// isTimeoutError checks if error is a timeout
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	if err == context.DeadlineExceeded {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
