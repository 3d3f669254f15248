package auth

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRefreshToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateRefreshToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, RefreshTokenBytes)

		assert.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}

func TestGenerateNumericCode(t *testing.T) {
	digitsOnly := regexp.MustCompile(`^[0-9]{6}$`)
	counts := make(map[byte]int)

	for i := 0; i < 2000; i++ {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		require.Regexp(t, digitsOnly, code)
		for j := 0; j < len(code); j++ {
			counts[code[j]]++
		}
	}

	// 12000 digits; every digit should appear roughly 1200 times
	for d := byte('0'); d <= '9'; d++ {
		assert.Greater(t, counts[d], 900, "digit %c under-represented", d)
		assert.Less(t, counts[d], 1500, "digit %c over-represented", d)
	}
}

func TestGenerateNumericCode_RejectsNonPositiveLength(t *testing.T) {
	_, err := GenerateNumericCode(0)
	assert.Error(t, err)
}
