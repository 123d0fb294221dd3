package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

func TestParseActorID(t *testing.T) {
	t.Run("valid UUID round-trips", func(t *testing.T) {
		raw := uuid.NewString()
		actorID, err := id.ParseActorID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, actorID.String())
		assert.False(t, actorID.IsNil())
	})

	t.Run("empty string is rejected", func(t *testing.T) {
		_, err := id.ParseActorID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("malformed UUID is rejected", func(t *testing.T) {
		_, err := id.ParseActorID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("nil UUID is rejected", func(t *testing.T) {
		_, err := id.ParseActorID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseMemorialID(t *testing.T) {
	raw := uuid.NewString()
	memorialID, err := id.ParseMemorialID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, memorialID.String())

	_, err = id.ParseMemorialID("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestNewIDsAreDistinct(t *testing.T) {
	assert.NotEqual(t, id.NewProfileID(), id.NewProfileID())
	assert.NotEqual(t, id.NewSampleID(), id.NewSampleID())
	assert.False(t, id.NewActorID().IsNil())
}
