package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewGameCode()
		require.NoError(t, err)
		assert.True(t, validCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestCodeFormatting(t *testing.T) {
	assert.Equal(t, "ABC123", NormalizeCode(" abc-123 "))
	assert.Equal(t, "ABC123", NormalizeCode("ABC 123"))
	assert.Equal(t, "ABC-123", PrettyCode("abc123"))
	assert.Equal(t, "AB", PrettyCode("ab"))
	assert.False(t, validCode("ABC12"))
	assert.False(t, validCode("ABC12!"))
}
