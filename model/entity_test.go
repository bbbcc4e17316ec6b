package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEntityType(t *testing.T) {
	t.Run("Known buckets pass through", func(t *testing.T) {
		for _, knownType := range KnownEntityTypes {
			assert.Equal(t, knownType, NormalizeEntityType(string(knownType)))
		}
	})

	t.Run("Unknown buckets coerce to custom", func(t *testing.T) {
		assert.Equal(t, EntityTypeCustom, NormalizeEntityType("deities"))
		assert.Equal(t, EntityTypeCustom, NormalizeEntityType(""))
		assert.Equal(t, EntityTypeCustom, NormalizeEntityType("NPCs"), "Expected bucket matching to be case sensitive")
	})
}
