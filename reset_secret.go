package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

// GenerateResetSecret returns a fresh opaque reset secret: 32 random
// bytes, hex encoded.
func GenerateResetSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset secret")
	}
	return hex.EncodeToString(b), nil
}

// HashResetSecret returns the deterministic digest stored server-side for
// a reset secret. Unlike passwords the secret is high-entropy and
// single-use by policy, so a fast unsalted hash is sufficient.
func HashResetSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// CompareResetSecretAndHash compares a secret to a stored digest in
// constant time.
func CompareResetSecretAndHash(secret, digest string) bool {
	computed := HashResetSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
