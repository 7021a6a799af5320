package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPurpose scopes a token to the single flow it was minted for. A
// token presented for any other purpose fails validation as malformed.
type TokenPurpose string

const (
	// TokenPurposeSession authenticates ordinary requests.
	TokenPurposeSession TokenPurpose = "session"
	// TokenPurposeVerify is carried by the mailed email-verification link.
	TokenPurposeVerify TokenPurpose = "verify"
	// TokenPurposeReset is carried by the mailed password-reset link.
	TokenPurposeReset TokenPurpose = "reset"
)

// AuthClaims represents the validated claims of a bearer token.
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Purpose() TokenPurpose
	HasRole(role string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
	TokenUse string `json:"purpose,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role claim
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Purpose returns the purpose claim
func (c *JWTClaims) Purpose() TokenPurpose {
	return TokenPurpose(c.TokenUse)
}

// HasRole checks if the claims carry a specific role. Membership is
// exact; no role implies another.
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
