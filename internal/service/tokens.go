package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/passgate/passgate/pkg/config"
)

// TokenCodec signs and parses session bearer tokens. Tokens are HS256 JWTs
// carrying only a session ID; all session state stays server-side, so
// deleting the record invalidates the token.
type TokenCodec struct {
	secret []byte
	issuer string
}

// NewTokenCodec creates a TokenCodec from the JWT configuration.
func NewTokenCodec(cfg *config.JWTConfig) *TokenCodec {
	return &TokenCodec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// Issue signs a token referencing the session record.
func (t *TokenCodec) Issue(sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sid": sessionID,
		"iss": t.issuer,
		"iat": time.Now().Unix(),
		"exp": expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// SessionID validates a token and extracts the session ID it references.
func (t *TokenCodec) SessionID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}

	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return "", errors.New("invalid token claims")
	}
	return sid, nil
}
