package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Policy is the authentication policy applied to an identity.
type Policy string

const (
	// PolicySingleFactor means the password-equivalence check alone completes login.
	PolicySingleFactor Policy = "single-factor"
	// PolicyTwoFactor means a credential assertion is required after the password check.
	PolicyTwoFactor Policy = "two-factor"
)

// NewIdentityID returns a fresh 32-byte base64url identity identifier.
// Identifiers are generated once at first sight of a username and never reused.
func NewIdentityID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Identity is a user known to the relying party together with the
// public-key credentials registered for it.
type Identity struct {
	ID           string       `json:"id" bson:"_id"`
	Username     string       `json:"username" bson:"username"`
	PasswordHash *string      `json:"-" bson:"password_hash,omitempty"`
	Credentials  []Credential `json:"credentials" bson:"credentials"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`
}

// Policy derives the applicable authentication policy. Registering the first
// credential upgrades the identity to two-factor; removing the last one
// downgrades it again. There is no separate opt-in flag.
func (i *Identity) Policy() Policy {
	if len(i.Credentials) > 0 {
		return PolicyTwoFactor
	}
	return PolicySingleFactor
}

// Credential returns the credential with the given ID, or nil.
func (i *Identity) Credential(credentialID string) *Credential {
	for idx := range i.Credentials {
		if i.Credentials[idx].CredentialID == credentialID {
			return &i.Credentials[idx]
		}
	}
	return nil
}

// HasCredential reports whether a credential with the given ID is registered.
func (i *Identity) HasCredential(credentialID string) bool {
	return i.Credential(credentialID) != nil
}

// Credential is a registered WebAuthn public-key credential, owned
// exclusively by its identity.
type Credential struct {
	CredentialID    string    `json:"credentialId" bson:"credential_id"` // base64url
	PublicKey       []byte    `json:"-" bson:"public_key"`
	AttestationType string    `json:"-" bson:"attestation_type"`
	Name            string    `json:"name" bson:"name"`
	Transports      []string  `json:"transports,omitempty" bson:"transports,omitempty"`
	ResidentKey     *bool     `json:"residentKey,omitempty" bson:"resident_key,omitempty"`
	Flags           uint8     `json:"-" bson:"flags"`
	SignCount       uint32    `json:"-" bson:"sign_count"`
	CloneWarning    bool      `json:"-" bson:"clone_warning"`
	CreatedAt       time.Time `json:"createdAt" bson:"created_at"`
	LastUsedAt      time.Time `json:"lastUsedAt,omitempty" bson:"last_used_at,omitempty"`
}

// DisplayName returns the credential name for presentation. Empty names are
// stored as-is and only rendered as "unnamed" here.
func (c *Credential) DisplayName() string {
	if c.Name == "" {
		return "unnamed"
	}
	return c.Name
}
