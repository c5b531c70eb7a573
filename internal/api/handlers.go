package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/service"
	"github.com/passgate/passgate/pkg/config"
	"github.com/passgate/passgate/pkg/middleware"
)

// authFailedMessage is the single body returned for every authentication
// failure. Unknown usernames, wrong passwords, and rejected assertions all
// produce this exact response.
const authFailedMessage = "authentication failed"

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services *service.Services, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		cfg:      cfg,
		logger:   logger.Named("handlers"),
	}
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(200, StatusResponse{
		Status:       "ok",
		Service:      "passgate",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

func (h *Handlers) clientContext(c *gin.Context) service.ClientContext {
	return service.ClientContext{UserAgent: c.Request.UserAgent()}
}

func (h *Handlers) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(400, gin.H{"error": "Invalid request"})
	case errors.Is(err, service.ErrAuthFailed):
		c.JSON(401, gin.H{"error": authFailedMessage})
	case errors.Is(err, service.ErrCredentialNotFound):
		c.JSON(404, gin.H{"error": "Credential not found"})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(500, gin.H{"error": "Internal server error"})
	}
}

// InitiateRequest is the payload for starting a login.
type InitiateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Initiate runs the password step of a login
func (h *Handlers) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.services.Auth.Initiate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, result)
}

// SecondFactorOptions issues the assertion challenge for a pending login
func (h *Handlers) SecondFactorOptions(c *gin.Context) {
	session := middleware.SessionFrom(c)

	options, err := h.services.Auth.SecondFactorOptions(c.Request.Context(), session)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, gin.H{"publicKey": options})
}

// SecondFactorRequest carries the authenticator's assertion response.
type SecondFactorRequest struct {
	Response json.RawMessage `json:"response"`
}

// CompleteSecondFactor verifies the assertion and finishes the login
func (h *Handlers) CompleteSecondFactor(c *gin.Context) {
	session := middleware.SessionFrom(c)

	var req SecondFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.services.Auth.CompleteSecondFactor(c.Request.Context(), session, req.Response, h.clientContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, result)
}

// SignOut destroys the current session
func (h *Handlers) SignOut(c *gin.Context) {
	session := middleware.SessionFrom(c)

	if err := h.services.Auth.SignOut(c.Request.Context(), session); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, gin.H{"status": "signed out"})
}

// CredentialOptions issues the attestation challenge for registering a new
// credential
func (h *Handlers) CredentialOptions(c *gin.Context) {
	session := middleware.SessionFrom(c)

	options, err := h.services.Auth.CredentialOptions(c.Request.Context(), session)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, gin.H{"publicKey": options})
}

// RegisterCredentialRequest carries the authenticator's attestation
// response and an optional display name.
type RegisterCredentialRequest struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// CredentialView is the client-facing shape of a registered credential.
type CredentialView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName"`
	Transports  []string   `json:"transports,omitempty"`
	ResidentKey *bool      `json:"residentKey,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

func credentialView(cred *domain.Credential) CredentialView {
	view := CredentialView{
		ID:          cred.CredentialID,
		Name:        cred.Name,
		DisplayName: cred.DisplayName(),
		Transports:  cred.Transports,
		ResidentKey: cred.ResidentKey,
		CreatedAt:   cred.CreatedAt,
	}
	if !cred.LastUsedAt.IsZero() {
		lastUsed := cred.LastUsedAt
		view.LastUsedAt = &lastUsed
	}
	return view
}

// RegisterCredential verifies the attestation and stores the credential
func (h *Handlers) RegisterCredential(c *gin.Context) {
	session := middleware.SessionFrom(c)

	var req RegisterCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	cred, err := h.services.Auth.RegisterCredential(c.Request.Context(), session, req.Name, req.Response, h.clientContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, credentialView(cred))
}

// ListCredentials returns the registered credentials for the current
// identity
func (h *Handlers) ListCredentials(c *gin.Context) {
	session := middleware.SessionFrom(c)

	creds, err := h.services.Auth.Credentials(c.Request.Context(), session)
	if err != nil {
		h.handleError(c, err)
		return
	}

	views := make([]CredentialView, 0, len(creds))
	for i := range creds {
		views = append(views, credentialView(&creds[i]))
	}
	c.JSON(200, gin.H{"credentials": views})
}

// RenameCredentialRequest is the payload for renaming a credential.
type RenameCredentialRequest struct {
	Name string `json:"name"`
}

// RenameCredential sets a credential's display name
func (h *Handlers) RenameCredential(c *gin.Context) {
	session := middleware.SessionFrom(c)
	credentialID := c.Param("id")

	var req RenameCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.services.Auth.RenameCredential(c.Request.Context(), session, credentialID, req.Name); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, gin.H{"status": "renamed"})
}

// DeleteCredential removes a credential
func (h *Handlers) DeleteCredential(c *gin.Context) {
	session := middleware.SessionFrom(c)
	credentialID := c.Param("id")

	if err := h.services.Auth.RemoveCredential(c.Request.Context(), session, credentialID); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(200, gin.H{"status": "removed"})
}
