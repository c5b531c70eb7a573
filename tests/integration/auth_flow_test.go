package integration

import (
	"net/http"
	"testing"

	"github.com/passgate/passgate/internal/domain"
)

type initiateResponse struct {
	Status           string `json:"status"`
	Token            string `json:"token"`
	AllowCredentials []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"allowCredentials"`
}

func TestLoginWithoutCredentialsCompletesDirectly(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedUser("alice", "correct horse")

	var resp initiateResponse
	h.POST("/auth/initiate", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}).Status(http.StatusOK).JSON(&resp)

	if resp.Status != "complete" {
		t.Fatalf("Expected status 'complete', got %q", resp.Status)
	}
	if resp.Token == "" {
		t.Fatal("Expected a session token")
	}

	// the token opens credential management
	h.WithAuth(resp.Token).GET("/credentials").Status(http.StatusOK)
}

func TestLoginWithCredentialNeedsSecondFactor(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedUser("alice", "correct horse", domain.Credential{
		CredentialID: "cred-1",
		Transports:   []string{"internal"},
	})

	var resp initiateResponse
	h.POST("/auth/initiate", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}).Status(http.StatusOK).JSON(&resp)

	if resp.Status != "need-second-factor" {
		t.Fatalf("Expected status 'need-second-factor', got %q", resp.Status)
	}
	if len(resp.AllowCredentials) != 1 || resp.AllowCredentials[0].ID != "cred-1" {
		t.Fatalf("Expected allow-list with cred-1, got %+v", resp.AllowCredentials)
	}

	// pending session cannot touch credential management
	h.WithAuth(resp.Token).GET("/credentials").Status(http.StatusUnauthorized)

	// options hands out a challenge
	h.WithAuth(resp.Token).POST("/auth/two-factor/options", map[string]string{}).
		Status(http.StatusOK).BodyContains("challenge")

	// a bogus assertion is rejected with the generic failure
	h.WithAuth(resp.Token).POST("/auth/two-factor", map[string]interface{}{
		"response": map[string]interface{}{},
	}).Status(http.StatusUnauthorized).BodyContains("authentication failed")
}

func TestUnknownUserGetsSamePathAndError(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedUser("real@x.com", "rightpassword", domain.Credential{CredentialID: "cred-1"})

	attempts := []map[string]string{
		{"username": "unknown@x.com", "password": "anything"},
		{"username": "real@x.com", "password": "wrongpassword"},
	}

	var bodies []string
	for _, attempt := range attempts {
		var resp initiateResponse
		h.POST("/auth/initiate", attempt).Status(http.StatusOK).JSON(&resp)

		if resp.Status != "need-second-factor" {
			t.Fatalf("Expected 'need-second-factor' for %q, got %q", attempt["username"], resp.Status)
		}

		h.WithAuth(resp.Token).POST("/auth/two-factor/options", map[string]string{}).
			Status(http.StatusOK)

		r := h.WithAuth(resp.Token).POST("/auth/two-factor", map[string]interface{}{
			"response": map[string]interface{}{},
		})
		r.Status(http.StatusUnauthorized)
		bodies = append(bodies, string(r.Body()))
	}

	if bodies[0] != bodies[1] {
		t.Errorf("Failure responses differ:\n%s\n%s", bodies[0], bodies[1])
	}
}

func TestCredentialLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedUser("alice", "correct horse")

	var login initiateResponse
	h.POST("/auth/initiate", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}).Status(http.StatusOK).JSON(&login)

	client := h.WithAuth(login.Token)

	// creation options carry the user entity and a challenge
	client.POST("/credentials/options", nil).
		Status(http.StatusOK).
		BodyContains("challenge").
		BodyContains("alice")

	// manage a credential seeded behind the API
	h.SeedUser("alice", "correct horse", domain.Credential{CredentialID: "cred-1", Name: "phone"})

	var list struct {
		Credentials []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"credentials"`
	}
	client.GET("/credentials").Status(http.StatusOK).JSON(&list)
	if len(list.Credentials) != 1 || list.Credentials[0].Name != "phone" {
		t.Fatalf("Expected one credential named 'phone', got %+v", list.Credentials)
	}

	client.POST("/credentials/cred-1/rename", map[string]string{"name": "yubikey"}).
		Status(http.StatusOK)
	client.POST("/credentials/missing/rename", map[string]string{"name": "x"}).
		Status(http.StatusNotFound)

	client.DELETE("/credentials/cred-1").Status(http.StatusOK)

	client.GET("/credentials").Status(http.StatusOK).JSON(&list)
	if len(list.Credentials) != 0 {
		t.Fatalf("Expected empty credential list, got %+v", list.Credentials)
	}
}

func TestSignOutInvalidatesToken(t *testing.T) {
	h := NewTestHarness(t)
	h.SeedUser("alice", "correct horse")

	var login initiateResponse
	h.POST("/auth/initiate", map[string]string{
		"username": "alice",
		"password": "correct horse",
	}).Status(http.StatusOK).JSON(&login)

	client := h.WithAuth(login.Token)
	client.POST("/auth/signout", nil).Status(http.StatusOK)
	client.GET("/credentials").Status(http.StatusUnauthorized)
}
