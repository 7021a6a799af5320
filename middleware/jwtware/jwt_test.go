package jwtware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-userflow/middleware/jwtware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaims struct {
	subject string
	role    string
}

func (c stubClaims) Subject() string { return c.subject }
func (c stubClaims) UserID() string  { return c.subject }
func (c stubClaims) Role() string    { return c.role }
func (c stubClaims) HasRole(role string) bool {
	return c.role == role
}
func (c stubClaims) Expires() time.Time  { return time.Now().Add(time.Hour) }
func (c stubClaims) IssuedAt() time.Time { return time.Now() }

type stubValidator struct {
	// tokens maps raw token strings to the claims they validate to
	tokens map[string]stubClaims
}

func (v stubValidator) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, ok := v.tokens[tokenString]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func newTestApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected", jwtware.New(cfg), func(c *fiber.Ctx) error {
		claims, _ := c.Locals(cfg.ContextKey).(jwtware.AuthClaims)
		if claims == nil {
			return c.Status(fiber.StatusInternalServerError).SendString("claims missing")
		}
		return c.SendString(claims.UserID())
	})
	return app
}

func TestMiddlewareBearerHeader(t *testing.T) {
	app := newTestApp(jwtware.Config{
		ContextKey: "token",
		TokenValidator: stubValidator{tokens: map[string]stubClaims{
			"good-token": {subject: "user-1", role: "user"},
		}},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareCookieToken(t *testing.T) {
	app := newTestApp(jwtware.Config{
		ContextKey:  "token",
		TokenLookup: "cookie:token,header:Authorization",
		TokenValidator: stubValidator{tokens: map[string]stubClaims{
			"cookie-token": {subject: "user-2", role: "user"},
		}},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareMissingToken(t *testing.T) {
	app := newTestApp(jwtware.Config{
		ContextKey: "token",
		TokenValidator: stubValidator{tokens: map[string]stubClaims{
			"good-token": {subject: "user-1", role: "user"},
		}},
	})

	req := httptest.NewRequest("GET", "/protected", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMiddlewareInvalidToken(t *testing.T) {
	app := newTestApp(jwtware.Config{
		ContextKey: "token",
		TokenValidator: stubValidator{tokens: map[string]stubClaims{
			"good-token": {subject: "user-1", role: "user"},
		}},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareRoleGate(t *testing.T) {
	cfg := jwtware.Config{
		ContextKey:    "token",
		RequiredRoles: []string{"admin"},
		TokenValidator: stubValidator{tokens: map[string]stubClaims{
			"admin-token": {subject: "admin-1", role: "admin"},
			"user-token":  {subject: "user-1", role: "user"},
		}},
	}

	app := newTestApp(cfg)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestGetExtractorsParsesLookupSpec(t *testing.T) {
	extractors := jwtware.GetExtractors("cookie:token,header:Authorization", "Bearer")
	assert.Len(t, extractors, 2)

	extractors = jwtware.GetExtractors("header:Authorization")
	assert.Len(t, extractors, 1)

	extractors = jwtware.GetExtractors("bogus")
	assert.Empty(t, extractors)
}
