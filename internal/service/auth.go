package service

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/domain"
	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

var (
	// ErrValidation means the input was malformed and rejected before any
	// state change.
	ErrValidation = errors.New("invalid input")

	// ErrAuthFailed is the single user-visible authentication error. It
	// covers unknown usernames, wrong passwords, missing credentials, and
	// failed assertions alike so that none of those causes can be told
	// apart from the outside.
	ErrAuthFailed = errors.New("authentication failed")
)

const maxUsernameLength = 255

// CredentialDescriptor identifies a registered credential in ceremony
// options (allow and exclude lists).
type CredentialDescriptor struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Transports []string `json:"transports,omitempty"`
}

// InitiateResult is the outcome of the first authentication step.
type InitiateResult struct {
	Status           domain.AuthStatus      `json:"status"`
	Token            string                 `json:"token"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
}

// AssertionOptions is the publicKey request options for the second factor.
type AssertionOptions struct {
	Challenge        string                 `json:"challenge"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification"`
	Timeout          int                    `json:"timeout"`
}

// RelyingParty identifies the server in creation options.
type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserEntity identifies the account a new credential will belong to.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialParameter lists an accepted public key algorithm.
type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int64  `json:"alg"`
}

// CreationOptions is the publicKey creation options for registering a new
// credential.
type CreationOptions struct {
	RP                 RelyingParty           `json:"rp"`
	User               UserEntity             `json:"user"`
	Challenge          string                 `json:"challenge"`
	PubKeyCredParams   []CredentialParameter  `json:"pubKeyCredParams"`
	ExcludeCredentials []CredentialDescriptor `json:"excludeCredentials"`
	Attestation        string                 `json:"attestation"`
	Timeout            int                    `json:"timeout"`
}

// CompleteResult is the outcome of a finished login.
type CompleteResult struct {
	Status domain.AuthStatus `json:"status"`
	Token  string            `json:"token"`
}

// AuthService orchestrates the login flow: password step, second-factor
// ceremony, credential management, signout. It owns the mapping of internal
// failures onto the generic ErrAuthFailed.
type AuthService struct {
	registry *RegistryService
	sessions *SessionService
	broker   *ChallengeBroker
	origins  *OriginResolver
	verifier Verifier
	password PasswordChecker
	cfg      *config.Config
	logger   *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	registry *RegistryService,
	sessions *SessionService,
	broker *ChallengeBroker,
	origins *OriginResolver,
	verifier Verifier,
	password PasswordChecker,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		registry: registry,
		sessions: sessions,
		broker:   broker,
		origins:  origins,
		verifier: verifier,
		password: password,
		cfg:      cfg,
		logger:   logger.Named("auth-service"),
	}
}

func validateUsername(username string) error {
	if username == "" || len(username) > maxUsernameLength {
		return ErrValidation
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return ErrValidation
		}
	}
	return nil
}

func descriptorsFor(identity *domain.Identity) []CredentialDescriptor {
	descriptors := make([]CredentialDescriptor, 0, len(identity.Credentials))
	for _, cred := range identity.Credentials {
		descriptors = append(descriptors, CredentialDescriptor{
			Type:       "public-key",
			ID:         cred.CredentialID,
			Transports: cred.Transports,
		})
	}
	return descriptors
}

// Initiate runs the password step of a login. The flow always reaches the
// same two outcomes regardless of whether the username exists or the
// password was right: single-factor identities with a correct password
// complete immediately, everything else is told to present a second factor.
// The password check's result is recorded on the session, never returned.
func (s *AuthService) Initiate(ctx context.Context, username, password string) (*InitiateResult, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	identity, err := s.registry.ResolveIdentity(ctx, username)
	if err != nil {
		return nil, err
	}

	passed, err := s.password.Check(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("password check failed: %w", err)
	}

	session, token, err := s.sessions.Begin(ctx, username, passed)
	if err != nil {
		return nil, err
	}

	status := NextStatus(identity.Policy(), passed)
	if status == domain.AuthStatusComplete {
		mainToken, err := s.sessions.Complete(ctx, session)
		if err != nil {
			return nil, err
		}
		return &InitiateResult{Status: domain.AuthStatusComplete, Token: mainToken}, nil
	}

	session.AuthStatus = domain.AuthStatusNeedSecondFactor
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	return &InitiateResult{
		Status:           domain.AuthStatusNeedSecondFactor,
		Token:            token,
		AllowCredentials: descriptorsFor(identity),
	}, nil
}

// SecondFactorOptions issues an assertion challenge for the pending login
// and returns the request options. Calling it again replaces any earlier
// unconsumed challenge.
func (s *AuthService) SecondFactorOptions(ctx context.Context, session *domain.AuthSession) (*AssertionOptions, error) {
	if session.Kind != domain.SessionKindAuth || session.AuthStatus != domain.AuthStatusNeedSecondFactor {
		return nil, ErrAuthFailed
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return nil, err
	}

	challenge, err := s.broker.Issue(ctx, session, domain.PurposeAssertion, identity.ID)
	if err != nil {
		return nil, err
	}

	return &AssertionOptions{
		Challenge:        challenge,
		RPID:             s.cfg.Server.RPID,
		AllowCredentials: descriptorsFor(identity),
		UserVerification: "preferred",
		Timeout:          60000,
	}, nil
}

// CompleteSecondFactor verifies a submitted assertion and finishes the
// login. The pending challenge is cleared before the assertion is judged,
// so a failed attempt cannot retry against the same challenge. Every
// failure mode maps to ErrAuthFailed.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, session *domain.AuthSession, response []byte, client ClientContext) (*CompleteResult, error) {
	if session.Kind != domain.SessionKindAuth {
		return nil, ErrAuthFailed
	}

	pending, err := s.broker.Consume(ctx, session, domain.PurposeAssertion)
	if err != nil {
		if errors.Is(err, ErrNoPendingChallenge) {
			return nil, ErrAuthFailed
		}
		return nil, err
	}

	// an assertion without a prior successful password step is rejected
	// even if the signature itself would verify
	if !session.PasswordCheckPassed {
		return nil, ErrAuthFailed
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return nil, err
	}
	if pending.BoundTo != identity.ID {
		return nil, ErrAuthFailed
	}

	origin := s.origins.Resolve(client)
	result := s.verifier.VerifyAssertion(identity, pending.Challenge, origin, response)
	if !result.Verified {
		s.logger.Info("Second factor rejected", zap.String("username", session.Username))
		return nil, ErrAuthFailed
	}

	s.registry.RecordAssertion(ctx, identity.ID, result.CredentialID, result.SignCount, result.CloneWarning)

	token, err := s.sessions.Complete(ctx, session)
	if err != nil {
		return nil, err
	}

	return &CompleteResult{Status: domain.AuthStatusComplete, Token: token}, nil
}

// CredentialOptions issues a registration challenge for an authenticated
// session and returns the creation options. Registered credentials appear
// in the exclude list so an authenticator refuses to re-enroll itself.
func (s *AuthService) CredentialOptions(ctx context.Context, session *domain.AuthSession) (*CreationOptions, error) {
	if !session.FullyAuthenticated() {
		return nil, ErrAuthFailed
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return nil, err
	}

	challenge, err := s.broker.Issue(ctx, session, domain.PurposeRegistration, identity.ID)
	if err != nil {
		return nil, err
	}

	return &CreationOptions{
		RP: RelyingParty{
			ID:   s.cfg.Server.RPID,
			Name: s.cfg.Server.RPName,
		},
		User: UserEntity{
			ID:          identity.ID,
			Name:        identity.Username,
			DisplayName: identity.Username,
		},
		Challenge: challenge,
		PubKeyCredParams: []CredentialParameter{
			{Type: "public-key", Alg: -7},   // ES256
			{Type: "public-key", Alg: -257}, // RS256
		},
		ExcludeCredentials: descriptorsFor(identity),
		Attestation:        "none",
		Timeout:            60000,
	}, nil
}

// RegisterCredential verifies a submitted attestation and stores the new
// credential. Re-registering a credential ID the identity already holds is
// treated as success and leaves the stored set unchanged.
func (s *AuthService) RegisterCredential(ctx context.Context, session *domain.AuthSession, name string, response []byte, client ClientContext) (*domain.Credential, error) {
	if !session.FullyAuthenticated() {
		return nil, ErrAuthFailed
	}

	pending, err := s.broker.Consume(ctx, session, domain.PurposeRegistration)
	if err != nil {
		if errors.Is(err, ErrNoPendingChallenge) {
			return nil, ErrAuthFailed
		}
		return nil, err
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return nil, err
	}
	if pending.BoundTo != identity.ID {
		return nil, ErrAuthFailed
	}

	origin := s.origins.Resolve(client)
	result := s.verifier.VerifyAttestation(identity, pending.Challenge, origin, response)
	if !result.Verified {
		return nil, ErrAuthFailed
	}

	cred := domain.Credential{
		CredentialID:    result.CredentialID,
		PublicKey:       result.PublicKey,
		AttestationType: result.AttestationType,
		Name:            name,
		Transports:      result.Transports,
		ResidentKey:     result.ResidentKey,
		Flags:           result.Flags,
		SignCount:       result.SignCount,
	}

	if err := s.registry.AddCredential(ctx, identity.ID, cred); err != nil {
		if !errors.Is(err, ErrDuplicateCredential) {
			return nil, err
		}
		existing := identity.Credential(result.CredentialID)
		if existing != nil {
			return existing, nil
		}
	}

	return &cred, nil
}

// Credentials lists the registered credentials for the session's identity.
func (s *AuthService) Credentials(ctx context.Context, session *domain.AuthSession) ([]domain.Credential, error) {
	if !session.FullyAuthenticated() {
		return nil, ErrAuthFailed
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return nil, err
	}
	return identity.Credentials, nil
}

// RenameCredential sets a credential's display name for the session's
// identity.
func (s *AuthService) RenameCredential(ctx context.Context, session *domain.AuthSession, credentialID, name string) error {
	if !session.FullyAuthenticated() {
		return ErrAuthFailed
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return err
	}
	return s.registry.RenameCredential(ctx, identity.ID, credentialID, name)
}

// RemoveCredential deletes a credential for the session's identity.
// Removing the last one silently downgrades future logins to single-factor.
func (s *AuthService) RemoveCredential(ctx context.Context, session *domain.AuthSession, credentialID string) error {
	if !session.FullyAuthenticated() {
		return ErrAuthFailed
	}

	identity, err := s.registry.ResolveIdentity(ctx, session.Username)
	if err != nil {
		return err
	}
	return s.registry.RemoveCredential(ctx, identity.ID, credentialID)
}

// SignOut destroys the session. Signing out twice is harmless.
func (s *AuthService) SignOut(ctx context.Context, session *domain.AuthSession) error {
	if err := s.sessions.Destroy(ctx, session); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
