package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-userflow/middleware/jwtware"
)

// RouteAuthenticator wires the Authenticator into fiber routes: it logs
// identities in and out via cookie tokens and builds the route guard
// middleware.
type RouteAuthenticator struct {
	auth                   Authenticator
	cfg                    Config
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	Logger                 Logger
	ErrorHandler           fiber.ErrorHandler
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.GetExtendedTokenDuration() > 0 {
		extendedCookieDuration = time.Duration(cfg.GetExtendedTokenDuration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:                    cfg,
		auth:                   auther,
		Logger:                 defLogger{},
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a RouteAuthenticator) GetExtendedCookieDuration() time.Duration {
	return a.extendedCookieDuration
}

// ProtectedRoute guards routes with session token validation. When roles
// are given only identities carrying one of them get through.
func (a *RouteAuthenticator) ProtectedRoute(roles ...string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		ErrorHandler:   a.ErrorHandler,
		ContextKey:     a.cfg.GetContextKey(),
		TokenLookup:    a.cfg.GetTokenLookup(),
		AuthScheme:     a.cfg.GetAuthScheme(),
		TokenValidator: sessionValidator{auth: a.auth},
		RequiredRoles:  roles,
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if authClaims, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, authClaims)
			}
			return ctx
		},
	})
}

// Login authenticates the payload and, on success, drops the session
// token into an http-only cookie. The token is also returned so JSON
// clients can carry it as a bearer header.
func (a *RouteAuthenticator) Login(ctx *fiber.Ctx, payload LoginPayload) (string, Identity, error) {
	token, identity, err := a.auth.Login(ctx.UserContext(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return "", nil, err
	}

	duration := a.cookieDuration
	if payload.GetExtendedSession() {
		duration = a.extendedCookieDuration
	}

	a.setCookieToken(ctx, token, duration)
	return token, identity, nil
}

// Logout clears the session cookie. Issued tokens stay valid until they
// expire; there is no server side session to destroy.
func (a *RouteAuthenticator) Logout(ctx *fiber.Ctx) {
	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) setCookieToken(c *fiber.Ctx, val string, duration time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error

	switch {
	case errors.As(err, &richErr):
		// keep the original taxonomy
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		richErr = ErrTokenMissing
	case errors.Is(err, jwtware.ErrInsufficientRole):
		richErr = ErrInsufficientRole
	default:
		richErr = errors.Wrap(err, errors.CategoryAuth, "invalid authentication token").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"auth middleware rejected request %s: %s [%s] %s",
		c.OriginalURL(),
		richErr.Message,
		richErr.TextCode,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.Code
	if code == 0 {
		code = fiber.StatusUnauthorized
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": richErr.Message,
		"code":    richErr.TextCode,
	})
}

// sessionValidator binds the middleware to session purpose tokens, so a
// mailed verify or reset token can never authenticate a request.
type sessionValidator struct {
	auth Authenticator
}

func (v sessionValidator) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := v.auth.SessionFromToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
