package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/pkg/config"
)

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := NewTokenCodec(&config.JWTConfig{Secret: "secret-one", Issuer: "passgate"})

	token, err := codec.Issue("session-42", time.Now().Add(time.Hour))
	require.NoError(t, err)

	sid, err := codec.SessionID(token)
	require.NoError(t, err)
	assert.Equal(t, "session-42", sid)
}

func TestTokenCodec_RejectsExpired(t *testing.T) {
	codec := NewTokenCodec(&config.JWTConfig{Secret: "secret-one", Issuer: "passgate"})

	token, err := codec.Issue("session-42", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = codec.SessionID(token)
	assert.Error(t, err)
}

func TestTokenCodec_RejectsWrongSecret(t *testing.T) {
	issuing := NewTokenCodec(&config.JWTConfig{Secret: "secret-one", Issuer: "passgate"})
	verifying := NewTokenCodec(&config.JWTConfig{Secret: "secret-two", Issuer: "passgate"})

	token, err := issuing.Issue("session-42", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = verifying.SessionID(token)
	assert.Error(t, err)
}

func TestTokenCodec_RejectsGarbage(t *testing.T) {
	codec := NewTokenCodec(&config.JWTConfig{Secret: "secret-one", Issuer: "passgate"})

	_, err := codec.SessionID("not-a-token")
	assert.Error(t, err)

	_, err = codec.SessionID("")
	assert.Error(t, err)
}
