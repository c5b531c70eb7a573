package domain

import (
	"time"
)

// SessionKind separates the provisional login session from the fully
// authenticated one. A main session is only ever created by completing the
// login state machine; the auth session's token is invalidated at that point.
type SessionKind string

const (
	SessionKindAuth SessionKind = "auth"
	SessionKindMain SessionKind = "main"
)

// AuthStatus is the externally visible progress of a login.
type AuthStatus string

const (
	AuthStatusNone             AuthStatus = "none"
	AuthStatusNeedSecondFactor AuthStatus = "need-second-factor"
	AuthStatusComplete         AuthStatus = "complete"
)

// AuthSession is the ephemeral server-held session record, keyed by an
// opaque session ID that bearer tokens reference.
type AuthSession struct {
	ID                  string            `json:"id" bson:"_id"`
	Kind                SessionKind       `json:"kind" bson:"kind"`
	Username            string            `json:"username" bson:"username"`
	PasswordCheckPassed bool              `json:"password_check_passed" bson:"password_check_passed"`
	AuthStatus          AuthStatus        `json:"auth_status" bson:"auth_status"`
	PendingChallenge    *PendingChallenge `json:"pending_challenge,omitempty" bson:"pending_challenge,omitempty"`
	CreatedAt           time.Time         `json:"created_at" bson:"created_at"`
	ExpiresAt           time.Time         `json:"expires_at" bson:"expires_at"`
}

// IsExpired checks if the session has expired.
func (s *AuthSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// FullyAuthenticated reports whether this is a main session produced by a
// completed login.
func (s *AuthSession) FullyAuthenticated() bool {
	return s.Kind == SessionKindMain && s.AuthStatus == AuthStatusComplete
}
