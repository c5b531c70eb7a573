package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/pkg/config"
)

// AssertionResult is the outcome of checking an authenticator assertion.
// Verified is the only signal callers branch on; the rest is bookkeeping.
type AssertionResult struct {
	Verified     bool
	CredentialID string
	SignCount    uint32
	CloneWarning bool
}

// AttestationResult is the outcome of checking a registration attestation.
type AttestationResult struct {
	Verified        bool
	CredentialID    string
	PublicKey       []byte
	AttestationType string
	Transports      []string
	ResidentKey     *bool
	Flags           uint8
	SignCount       uint32
}

// Verifier checks ceremony responses against an expected challenge and
// origin. Implementations never report why a check failed.
type Verifier interface {
	VerifyAssertion(identity *domain.Identity, challenge, origin string, response []byte) AssertionResult
	VerifyAttestation(identity *domain.Identity, challenge, origin string, response []byte) AttestationResult
}

// WebAuthnVerifier implements Verifier on top of go-webauthn. Each expected
// origin gets its own configured instance, built lazily and cached; the
// library only validates against origins fixed at construction time.
type WebAuthnVerifier struct {
	cfg    *config.Config
	logger *zap.Logger

	mu       sync.Mutex
	byOrigin map[string]*webauthn.WebAuthn
}

// NewWebAuthnVerifier creates a new WebAuthnVerifier
func NewWebAuthnVerifier(cfg *config.Config, logger *zap.Logger) *WebAuthnVerifier {
	return &WebAuthnVerifier{
		cfg:      cfg,
		logger:   logger.Named("webauthn-verifier"),
		byOrigin: make(map[string]*webauthn.WebAuthn),
	}
}

func (v *WebAuthnVerifier) instanceFor(origin string) (*webauthn.WebAuthn, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if wa, ok := v.byOrigin[origin]; ok {
		return wa, nil
	}

	wconfig := &webauthn.Config{
		RPDisplayName: v.cfg.Server.RPName,
		RPID:          v.cfg.Server.RPID,
		RPOrigins:     []string{origin},
	}

	wa, err := webauthn.New(wconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn: %w", err)
	}

	v.byOrigin[origin] = wa
	return wa, nil
}

// webauthnIdentity implements webauthn.User for an identity's credential set
type webauthnIdentity struct {
	identity *domain.Identity
}

func (u *webauthnIdentity) WebAuthnID() []byte {
	return []byte(u.identity.ID)
}

func (u *webauthnIdentity) WebAuthnName() string {
	return u.identity.Username
}

func (u *webauthnIdentity) WebAuthnDisplayName() string {
	return u.identity.Username
}

func (u *webauthnIdentity) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.identity.Credentials))
	for _, c := range u.identity.Credentials {
		id, err := base64.RawURLEncoding.DecodeString(c.CredentialID)
		if err != nil {
			continue
		}
		creds = append(creds, webauthn.Credential{
			ID:              id,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       parseTransports(c.Transports),
			Flags: webauthn.CredentialFlags{
				UserPresent:    c.Flags&0x01 != 0,
				UserVerified:   c.Flags&0x04 != 0,
				BackupEligible: c.Flags&0x08 != 0,
				BackupState:    c.Flags&0x10 != 0,
			},
			Authenticator: webauthn.Authenticator{
				SignCount:    c.SignCount,
				CloneWarning: c.CloneWarning,
			},
		})
	}
	return creds
}

func parseTransports(transports []string) []protocol.AuthenticatorTransport {
	result := make([]protocol.AuthenticatorTransport, 0, len(transports))
	for _, t := range transports {
		result = append(result, protocol.AuthenticatorTransport(t))
	}
	return result
}

// VerifyAssertion checks an assertion response against the identity's
// registered credentials. Any failure along the way yields a result with
// Verified false; the caller cannot distinguish a parse error from a bad
// signature.
func (v *WebAuthnVerifier) VerifyAssertion(identity *domain.Identity, challenge, origin string, response []byte) AssertionResult {
	wa, err := v.instanceFor(origin)
	if err != nil {
		v.logger.Error("Failed to build verifier instance", zap.Error(err))
		return AssertionResult{}
	}

	parsedResponse, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		v.logger.Debug("Failed to parse assertion response", zap.Error(err))
		return AssertionResult{}
	}

	sessionData := webauthn.SessionData{
		Challenge:        challenge,
		UserID:           []byte(identity.ID),
		UserVerification: protocol.VerificationPreferred,
	}

	credential, err := wa.ValidateLogin(&webauthnIdentity{identity: identity}, sessionData, parsedResponse)
	if err != nil {
		v.logger.Debug("Assertion verification failed", zap.Error(err))
		return AssertionResult{}
	}

	return AssertionResult{
		Verified:     true,
		CredentialID: base64.RawURLEncoding.EncodeToString(credential.ID),
		SignCount:    credential.Authenticator.SignCount,
		CloneWarning: credential.Authenticator.CloneWarning,
	}
}

// VerifyAttestation checks a registration response and extracts the new
// credential. As with assertions, all failures collapse to Verified false.
func (v *WebAuthnVerifier) VerifyAttestation(identity *domain.Identity, challenge, origin string, response []byte) AttestationResult {
	wa, err := v.instanceFor(origin)
	if err != nil {
		v.logger.Error("Failed to build verifier instance", zap.Error(err))
		return AttestationResult{}
	}

	parsedResponse, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		v.logger.Debug("Failed to parse attestation response", zap.Error(err))
		return AttestationResult{}
	}

	sessionData := webauthn.SessionData{
		Challenge:        challenge,
		UserID:           []byte(identity.ID),
		UserVerification: protocol.VerificationPreferred,
	}

	credential, err := wa.CreateCredential(&webauthnIdentity{identity: identity}, sessionData, parsedResponse)
	if err != nil {
		v.logger.Debug("Attestation verification failed", zap.Error(err))
		return AttestationResult{}
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	result := AttestationResult{
		Verified:        true,
		CredentialID:    base64.RawURLEncoding.EncodeToString(credential.ID),
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      transports,
		Flags:           encodeFlags(credential.Flags),
		SignCount:       credential.Authenticator.SignCount,
	}

	// the authenticator only reports resident-key status through the
	// credProps extension; absent means unknown, not false
	if props, ok := parsedResponse.ClientExtensionResults["credProps"].(map[string]interface{}); ok {
		if rk, ok := props["rk"].(bool); ok {
			result.ResidentKey = &rk
		}
	}

	return result
}

func encodeFlags(flags webauthn.CredentialFlags) uint8 {
	var result uint8
	if flags.UserPresent {
		result |= 0x01
	}
	if flags.UserVerified {
		result |= 0x04
	}
	if flags.BackupEligible {
		result |= 0x08
	}
	if flags.BackupState {
		result |= 0x10
	}
	return result
}
