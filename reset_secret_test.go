package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
)

func TestGenerateResetSecret(t *testing.T) {
	a, err := auth.GenerateResetSecret()
	assert.NoError(t, err)
	assert.Len(t, a, 64) // 32 random bytes, hex encoded

	b, err := auth.GenerateResetSecret()
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCompareResetSecretAndHash(t *testing.T) {
	secret, err := auth.GenerateResetSecret()
	assert.NoError(t, err)

	hash := auth.HashResetSecret(secret)
	assert.NotEqual(t, secret, hash)

	assert.True(t, auth.CompareResetSecretAndHash(secret, hash))
	assert.False(t, auth.CompareResetSecretAndHash("other-secret", hash))
	assert.False(t, auth.CompareResetSecretAndHash(secret, auth.HashResetSecret("other-secret")))
}

func TestHashResetSecretIsDeterministic(t *testing.T) {
	assert.Equal(t,
		auth.HashResetSecret("fixed-value"),
		auth.HashResetSecret("fixed-value"),
	)
}
