package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Stable text codes surfaced with domain failures.
const (
	TextCodeEmailConflict      = "EMAIL_ALREADY_REGISTERED"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	TextCodeInsufficientRole   = "INSUFFICIENT_ROLE"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenMissing       = "TOKEN_MISSING"
	TextCodeResetExpired       = "RESET_EXPIRED"
	TextCodeDeliveryFailed     = "DELIVERY_FAILED"
)

// ErrEmailConflict is returned when registering an email that already has an account.
var ErrEmailConflict = errors.New("an account with this email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeEmailConflict).
	WithCode(errors.CodeConflict)

// ErrAccountNotFound is returned when a token's subject no longer resolves to an account.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials covers both an unknown email and a wrong password.
// The two cases are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotVerified is returned when credentials match but the email is unverified.
var ErrAccountNotVerified = errors.New("please verify your email before logging in", errors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrInsufficientRole is returned when the principal's role is not in the required set.
var ErrInsufficientRole = errors.New("insufficient role for this operation", errors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRole).
	WithCode(errors.CodeForbidden)

// ErrTokenExpired is returned when a token's expiry has passed.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed covers bad signatures, malformed structures, and purpose mismatches.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMissing is returned when a request carries no token at all.
var ErrTokenMissing = errors.New("no token provided", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMissing).
	WithCode(errors.CodeUnauthorized)

// ErrResetExpired covers both a missing pending reset and one that timed out;
// the caller cannot tell the two apart.
var ErrResetExpired = errors.New("reset token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeResetExpired).
	WithCode(errors.CodeBadRequest)

// ErrDeliveryFailed is returned when a notification could not be sent.
var ErrDeliveryFailed = errors.New("could not send notification email", errors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(errors.CodeInternal)

// ErrNoEmptyString rejects empty secrets before hashing.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch; the
// identity provider maps it to ErrInvalidCredentials before it leaves.
var ErrMismatchedHashAndPassword = errors.New("hashed password mismatch", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedTokenError will check for error message
func IsMalformedTokenError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenInvalid {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsMissingTokenError reports whether the request carried no token.
func IsMissingTokenError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMissing {
		return true
	}
	return strings.Contains(err.Error(), "missing or malformed JWT")
}
