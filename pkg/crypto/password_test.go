package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "secret123"},
		{"password with symbols", "p@$$w0rd!#"},
		{"unicode password", "contraseña-segura"},
		{"max length password", strings.Repeat("a", 72)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, strings.HasPrefix(hash, "$2a$"))
			assert.NoError(t, CheckPassword(hash, tt.password))
		})
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", 73))
	assert.Error(t, err)
}

func TestHashPassword_DifferentHashesForSamePassword(t *testing.T) {
	first, err := HashPassword("secret123")
	require.NoError(t, err)
	second, err := HashPassword("secret123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCheckPassword_Mismatch(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)

	err = CheckPassword(hash, "wrong-password")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}
