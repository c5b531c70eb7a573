package mongodb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/passgate/passgate/internal/storage"
)

func TestDBErr(t *testing.T) {
	cause := errors.New("connection reset")
	err := dbErr("failed to get identity", cause)

	assert.True(t, errors.Is(err, storage.ErrDatabase))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, storage.ErrNotFound))
	assert.Equal(t, "failed to get identity: database error: connection reset", err.Error())
}
