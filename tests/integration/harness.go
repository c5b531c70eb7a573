package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/api"
	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/service"
	"github.com/passgate/passgate/internal/storage/memory"
	"github.com/passgate/passgate/pkg/config"
)

// TestHarness provides a complete test environment with an HTTP server,
// configured services, and helper methods for making API requests.
type TestHarness struct {
	T        *testing.T
	Server   *httptest.Server
	Config   *config.Config
	Storage  *memory.Store
	Services *service.Services

	Client  *http.Client
	BaseURL string
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithConfig sets a custom config for the test harness
func WithConfig(cfg *config.Config) TestHarnessOption {
	return func(h *TestHarness) {
		h.Config = cfg
	}
}

// NewTestHarness creates a new test harness with a running test server
func NewTestHarness(t *testing.T, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)

	h := &TestHarness{
		T:      t,
		Client: &http.Client{},
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.Config == nil {
		h.Config = config.DefaultConfig()
		h.Config.JWT.Secret = "test-secret-key-for-integration-tests"
		h.Config.Server.AuthRateLimit.Enabled = false
		h.Config.Logging.Level = "error"
	}

	logger := zap.NewNop()
	h.Storage = memory.NewStore()
	h.Services = service.NewServices(h.Storage, h.Config, logger)

	router := api.NewRouter(h.Config, h.Services, logger)
	h.Server = httptest.NewServer(router)
	h.BaseURL = h.Server.URL

	t.Cleanup(func() {
		h.Server.Close()
	})

	return h
}

// SeedUser provisions an identity with a password and optional credentials
func (h *TestHarness) SeedUser(username, password string, creds ...domain.Credential) {
	h.T.Helper()
	ctx := context.Background()

	identity, err := h.Services.Registry.ResolveIdentity(ctx, username)
	if err != nil {
		h.T.Fatalf("Failed to resolve identity: %v", err)
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		h.T.Fatalf("Failed to hash password: %v", err)
	}
	identity.PasswordHash = &hash
	if err := h.Storage.Identities().Update(ctx, identity); err != nil {
		h.T.Fatalf("Failed to store password: %v", err)
	}

	for _, cred := range creds {
		if err := h.Services.Registry.AddCredential(ctx, identity.ID, cred); err != nil {
			h.T.Fatalf("Failed to add credential: %v", err)
		}
	}
}

// Request makes an HTTP request to the test server
func (h *TestHarness) Request(method, path string, body interface{}) *Response {
	h.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return h.Do(req)
}

// Do executes an HTTP request and returns a Response wrapper
func (h *TestHarness) Do(req *http.Request) *Response {
	h.T.Helper()

	resp, err := h.Client.Do(req)
	if err != nil {
		h.T.Fatalf("Request failed: %v", err)
	}

	return &Response{
		T:        h.T,
		Response: resp,
	}
}

// GET makes a GET request
func (h *TestHarness) GET(path string) *Response {
	return h.Request(http.MethodGet, path, nil)
}

// POST makes a POST request with a JSON body
func (h *TestHarness) POST(path string, body interface{}) *Response {
	return h.Request(http.MethodPost, path, body)
}

// WithAuth returns a request builder that sends the bearer token
func (h *TestHarness) WithAuth(token string) *AuthenticatedClient {
	return &AuthenticatedClient{
		harness: h,
		token:   token,
	}
}

// AuthenticatedClient wraps the harness with auth headers
type AuthenticatedClient struct {
	harness *TestHarness
	token   string
}

func (c *AuthenticatedClient) request(method, path string, body interface{}) *Response {
	c.harness.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBody)
	}
	req, _ := http.NewRequest(method, c.harness.BaseURL+path, bodyReader)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.harness.Do(req)
}

// GET makes an authenticated GET request
func (c *AuthenticatedClient) GET(path string) *Response {
	return c.request(http.MethodGet, path, nil)
}

// POST makes an authenticated POST request
func (c *AuthenticatedClient) POST(path string, body interface{}) *Response {
	return c.request(http.MethodPost, path, body)
}

// DELETE makes an authenticated DELETE request
func (c *AuthenticatedClient) DELETE(path string) *Response {
	return c.request(http.MethodDelete, path, nil)
}

// Response wraps an HTTP response with assertion helpers
type Response struct {
	T        *testing.T
	Response *http.Response
	body     []byte
	bodyRead bool
}

// Body returns the response body as bytes
func (r *Response) Body() []byte {
	r.T.Helper()
	if !r.bodyRead {
		var err error
		r.body, err = io.ReadAll(r.Response.Body)
		if err != nil {
			r.T.Fatalf("Failed to read response body: %v", err)
		}
		_ = r.Response.Body.Close()
		r.bodyRead = true
	}
	return r.body
}

// JSON unmarshals the response body into the given target
func (r *Response) JSON(target interface{}) *Response {
	r.T.Helper()
	if err := json.Unmarshal(r.Body(), target); err != nil {
		r.T.Fatalf("Failed to unmarshal response: %v\nBody: %s", err, string(r.Body()))
	}
	return r
}

// Status asserts the response status code
func (r *Response) Status(expected int) *Response {
	r.T.Helper()
	if r.Response.StatusCode != expected {
		r.T.Errorf("Expected status %d, got %d\nBody: %s", expected, r.Response.StatusCode, string(r.Body()))
	}
	return r
}

// BodyContains asserts the response body contains a substring
func (r *Response) BodyContains(substr string) *Response {
	r.T.Helper()
	if !bytes.Contains(r.Body(), []byte(substr)) {
		r.T.Errorf("Expected body to contain %q\nBody: %s", substr, string(r.Body()))
	}
	return r
}
