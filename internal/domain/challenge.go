package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// ChallengePurpose distinguishes the two ceremonies a challenge can be bound to.
type ChallengePurpose string

const (
	PurposeRegistration ChallengePurpose = "registration"
	PurposeAssertion    ChallengePurpose = "assertion"
)

// NewChallenge returns a fresh 32-byte base64url challenge value.
func NewChallenge() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// PendingChallenge is the single outstanding challenge of an authentication
// session. It lives only inside the session record and is never written to
// the credential store. Issuing a new one replaces any previous value.
type PendingChallenge struct {
	Challenge string           `json:"challenge" bson:"challenge"`
	BoundTo   string           `json:"bound_to" bson:"bound_to"` // identity ID
	Purpose   ChallengePurpose `json:"purpose" bson:"purpose"`
	IssuedAt  time.Time        `json:"issued_at" bson:"issued_at"`
}

// Age returns how long ago the challenge was issued.
func (p *PendingChallenge) Age() time.Duration {
	return time.Since(p.IssuedAt)
}
