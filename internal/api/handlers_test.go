package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/service"
	"github.com/passgate/passgate/internal/storage/memory"
	"github.com/passgate/passgate/pkg/config"
)

type apiFixture struct {
	store    *memory.Store
	services *service.Services
	router   *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.JWT.Secret = "api-test-secret"
	cfg.Server.AuthRateLimit.Enabled = false
	cfg.Logging.Level = "error"

	store := memory.NewStore()
	services := service.NewServices(store, cfg, zap.NewNop())

	return &apiFixture{
		store:    store,
		services: services,
		router:   NewRouter(cfg, services, zap.NewNop()),
	}
}

func (f *apiFixture) seedUser(t *testing.T, username, password string, creds ...domain.Credential) {
	t.Helper()
	ctx := context.Background()

	identity, err := f.services.Registry.ResolveIdentity(ctx, username)
	require.NoError(t, err)

	hash, err := service.HashPassword(password)
	require.NoError(t, err)
	identity.PasswordHash = &hash
	require.NoError(t, f.store.Identities().Update(ctx, identity))

	for _, cred := range creds {
		require.NoError(t, f.services.Registry.AddCredential(ctx, identity.ID, cred))
	}
}

func (f *apiFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) login(t *testing.T, username, password string) string {
	t.Helper()

	w := f.do("POST", "/auth/initiate", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code)

	var result service.InitiateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, domain.AuthStatusComplete, result.Status)
	return result.Token
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do("GET", "/status", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "passgate", status.Service)
	assert.Equal(t, CurrentAPIVersion, status.APIVersion)
}

func TestInitiate_SingleFactor(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", "correct horse")

	w := f.do("POST", "/auth/initiate", "", gin.H{"username": "alice", "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)

	var result service.InitiateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.AuthStatusComplete, result.Status)
	assert.NotEmpty(t, result.Token)
}

func TestInitiate_TwoFactor(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", "correct horse", domain.Credential{
		CredentialID: "cred-1",
		Transports:   []string{"internal"},
	})

	w := f.do("POST", "/auth/initiate", "", gin.H{"username": "alice", "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)

	var result service.InitiateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.AuthStatusNeedSecondFactor, result.Status)
	require.Len(t, result.AllowCredentials, 1)
	assert.Equal(t, "cred-1", result.AllowCredentials[0].ID)
}

func TestInitiate_Validation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do("POST", "/auth/initiate", "", gin.H{"username": "", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/auth/initiate", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecondFactor_OptionsAndGenericFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "real@x.com", "rightpassword", domain.Credential{CredentialID: "cred-1"})

	// unknown user and wrong password take the same path and fail with the
	// same response body at the second-factor step
	var bodies []string
	for _, attempt := range []gin.H{
		{"username": "unknown@x.com", "password": "anything"},
		{"username": "real@x.com", "password": "wrongpassword"},
	} {
		w := f.do("POST", "/auth/initiate", "", attempt)
		require.Equal(t, http.StatusOK, w.Code)

		var result service.InitiateResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Equal(t, domain.AuthStatusNeedSecondFactor, result.Status)

		w = f.do("POST", "/auth/two-factor/options", result.Token, gin.H{})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "challenge")

		w = f.do("POST", "/auth/two-factor", result.Token, gin.H{"response": gin.H{}})
		require.Equal(t, http.StatusUnauthorized, w.Code)
		bodies = append(bodies, w.Body.String())
	}

	assert.Equal(t, bodies[0], bodies[1])
	assert.Contains(t, bodies[0], authFailedMessage)
}

func TestSecondFactor_RequiresSession(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do("POST", "/auth/two-factor/options", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do("POST", "/auth/two-factor", "bad-token", gin.H{"response": gin.H{}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCredentials_RequireFullAuth(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", "correct horse", domain.Credential{CredentialID: "cred-1"})

	// a pending two-factor session must not reach credential management
	w := f.do("POST", "/auth/initiate", "", gin.H{"username": "alice", "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)
	var result service.InitiateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, domain.AuthStatusNeedSecondFactor, result.Status)

	for _, probe := range []struct{ method, path string }{
		{"GET", "/credentials"},
		{"POST", "/credentials/options"},
		{"POST", "/credentials"},
		{"DELETE", "/credentials/cred-1"},
	} {
		w := f.do(probe.method, probe.path, result.Token, gin.H{})
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", probe.method, probe.path)
	}
}

func TestCredentials_ListRenameRemove(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", "correct horse")
	token := f.login(t, "alice", "correct horse")

	// register through the service layer; the HTTP attestation path needs a
	// real authenticator
	ctx := context.Background()
	identity, err := f.services.Registry.ResolveIdentity(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, f.services.Registry.AddCredential(ctx, identity.ID, domain.Credential{
		CredentialID: "cred-1",
		Name:         "phone",
		CreatedAt:    time.Now(),
	}))

	w := f.do("GET", "/credentials", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Credentials []CredentialView `json:"credentials"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Credentials, 1)
	assert.Equal(t, "phone", list.Credentials[0].Name)

	w = f.do("POST", "/credentials/cred-1/rename", token, gin.H{"name": "yubikey"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("POST", "/credentials/missing/rename", token, gin.H{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// renaming to the empty string is allowed; display falls back
	w = f.do("POST", "/credentials/cred-1/rename", token, gin.H{"name": ""})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/credentials", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Credentials, 1)
	assert.Equal(t, "", list.Credentials[0].Name)
	assert.Equal(t, "unnamed", list.Credentials[0].DisplayName)

	w = f.do("DELETE", "/credentials/cred-1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// deleting again is a no-op
	w = f.do("DELETE", "/credentials/cred-1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/credentials", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Credentials)
}

func TestCredentialOptions(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", "correct horse")
	token := f.login(t, "alice", "correct horse")

	w := f.do("POST", "/credentials/options", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		PublicKey service.CreationOptions `json:"publicKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.PublicKey.Challenge)
	assert.Equal(t, "alice", resp.PublicKey.User.Name)
	assert.NotEmpty(t, resp.PublicKey.PubKeyCredParams)
}

func TestSignOut(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "alice", "correct horse")
	token := f.login(t, "alice", "correct horse")

	w := f.do("POST", "/auth/signout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// the token is dead afterwards
	w = f.do("GET", "/credentials", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.JWT.Secret = "api-test-secret"
	cfg.Server.AuthRateLimit = config.AuthRateLimitConfig{
		Enabled:        true,
		MaxAttempts:    4,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	}
	cfg.Logging.Level = "error"

	store := memory.NewStore()
	services := service.NewServices(store, cfg, zap.NewNop())
	router := NewRouter(cfg, services, zap.NewNop())

	limited := false
	for i := 0; i < 20; i++ {
		body, _ := json.Marshal(gin.H{"username": fmt.Sprintf("user%d", i), "password": "pw"})
		req := httptest.NewRequest("POST", "/auth/initiate", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestCredentialView_LastUsed(t *testing.T) {
	fresh := domain.Credential{
		CredentialID: "cred-a",
		Name:         "laptop",
		CreatedAt:    time.Now(),
	}
	view := credentialView(&fresh)
	assert.Nil(t, view.LastUsedAt)

	used := fresh
	used.LastUsedAt = time.Now()
	view = credentialView(&used)
	require.NotNil(t, view.LastUsedAt)
	assert.WithinDuration(t, used.LastUsedAt, *view.LastUsedAt, time.Second)
}
