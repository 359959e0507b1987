package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigester(t *testing.T) {
	payload := []byte(`{"claim":"owns 730"}`)

	t.Run("unkeyed_is_stable", func(t *testing.T) {
		d, err := NewDigester("")
		require.NoError(t, err)
		assert.False(t, d.Keyed())

		a, err := d.Digest(payload)
		require.NoError(t, err)
		b, err := d.Digest(payload)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("key_changes_digest", func(t *testing.T) {
		plain, _ := NewDigester("")
		keyed, err := NewDigester("pepper")
		require.NoError(t, err)
		assert.True(t, keyed.Keyed())

		a, _ := plain.Digest(payload)
		b, _ := keyed.Digest(payload)
		assert.NotEqual(t, a, b)
	})

	t.Run("matches", func(t *testing.T) {
		d, _ := NewDigester("pepper")
		digest, err := d.Digest(payload)
		require.NoError(t, err)
		assert.True(t, d.Matches(payload, digest))
		assert.False(t, d.Matches([]byte("other"), digest))
	})

	t.Run("key_too_long", func(t *testing.T) {
		_, err := NewDigester(strings.Repeat("k", 65))
		assert.ErrorIs(t, err, ErrKeyTooLong)
	})
}
