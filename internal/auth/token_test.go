package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/scan-service/internal/domain"
)

func TestGenerateAndParseToken(t *testing.T) {
	tm := NewTokenManager("test-secret", 30)

	token, expiresAt, err := tm.GenerateToken("device-42", domain.SubjectTypeDevice)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "device-42", claims.SubjectID)
	assert.Equal(t, domain.SubjectTypeDevice, claims.Subject)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", 30)
	other := NewTokenManager("different-secret", 30)

	token, _, err := tm.GenerateToken("admin-1", domain.SubjectTypeAdmin)
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 30)
	_, err := tm.ParseToken("not-a-token")
	require.Error(t, err)
}

func TestSecretHashRoundTrip(t *testing.T) {
	hash, err := HashSecret("device-secret", 0)
	require.NoError(t, err)
	require.NotEqual(t, "device-secret", hash)

	require.NoError(t, CompareSecret(hash, "device-secret"))
	require.Error(t, CompareSecret(hash, "wrong-secret"))
}
