package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenServiceImpl implements the TokenService interface.
//
// Expiry boundary: jwt/v5 rejects a token once now >= exp, so a token
// issued with expiry t validates at t-1s and fails with ErrTokenExpired
// at t and after.
type TokenServiceImpl struct {
	signingKey []byte
	sessionTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: []byte(cfg.GetSigningKey()),
		sessionTTL: hoursOrDefault(cfg.GetTokenExpiration(), DefaultSessionTokenHours),
		verifyTTL:  hoursOrDefault(cfg.GetVerifyTokenExpiration(), DefaultVerifyTokenHours),
		resetTTL:   hoursOrDefault(cfg.GetResetTokenExpiration(), DefaultResetTokenHours),
		issuer:     cfg.GetIssuer(),
		audience:   cfg.GetAudience(),
		logger:     logger,
	}
}

// Default token lifetimes, in hours, when the configuration leaves them unset.
const (
	DefaultSessionTokenHours = 7 * 24
	DefaultVerifyTokenHours  = 24
	DefaultResetTokenHours   = 1
)

func hoursOrDefault(hours, def int) time.Duration {
	if hours <= 0 {
		hours = def
	}
	return time.Duration(hours) * time.Hour
}

// Generate creates a token scoped to the given purpose.
func (ts *TokenServiceImpl) Generate(identity Identity, purpose TokenPurpose) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.TTLFor(purpose))),
		},
		UID:      identity.ID(),
		UserRole: identity.Role(),
		TokenUse: string(purpose),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured
// claims. Expired tokens come back as ErrTokenExpired; bad signatures,
// malformed structures, and purpose mismatches as ErrTokenMalformed.
func (ts *TokenServiceImpl) Validate(tokenString string, purpose TokenPurpose) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims")
		return nil, ErrUnableToMapClaims
	}

	if claims.Purpose() != purpose {
		return nil, errors.New("token purpose mismatch", ErrTokenMalformed.Category).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code).
			WithMetadata(map[string]any{
				"expected": string(purpose),
				"actual":   string(claims.Purpose()),
			})
	}

	return claims, nil
}

// TTLFor returns the configured lifetime for a purpose.
func (ts *TokenServiceImpl) TTLFor(purpose TokenPurpose) time.Duration {
	switch purpose {
	case TokenPurposeVerify:
		return ts.verifyTTL
	case TokenPurposeReset:
		return ts.resetTTL
	default:
		return ts.sessionTTL
	}
}

func (ts *TokenServiceImpl) tokenDefaults() tokenDefaults {
	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	return tokenDefaults{
		issuer:   ts.issuer,
		audience: aud,
	}
}
