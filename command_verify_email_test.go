package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEmailMarksAccountVerified(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "super-secret-pw", false, auth.RoleUser)
	repo := newMemRepoManager(user)
	tokens := auth.NewTokenService(newTestConfig(), nil)

	token, err := tokens.Generate(auth.NewIdentityFromUser(user), auth.TokenPurposeVerify)
	require.NoError(t, err)

	handler := auth.NewVerifyEmailHandler(repo, tokens)

	var res *auth.VerifyEmailResponse
	err = handler.Execute(context.Background(), auth.VerifyEmailMessage{
		Token: token,
		OnResponse: func(resp *auth.VerifyEmailResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyVerified)
	assert.True(t, res.User.Verified)

	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestVerifyEmailIsIdempotent(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "super-secret-pw", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	tokens := auth.NewTokenService(newTestConfig(), nil)

	token, err := tokens.Generate(auth.NewIdentityFromUser(user), auth.TokenPurposeVerify)
	require.NoError(t, err)

	handler := auth.NewVerifyEmailHandler(repo, tokens)

	var res *auth.VerifyEmailResponse
	err = handler.Execute(context.Background(), auth.VerifyEmailMessage{
		Token: token,
		OnResponse: func(resp *auth.VerifyEmailResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AlreadyVerified)
}

func TestVerifyEmailRejectsExpiredToken(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "super-secret-pw", false, auth.RoleUser)
	repo := newMemRepoManager(user)
	tokens := auth.NewTokenService(newTestConfig(), nil)

	token, _, err := auth.MintPurposeToken(tokens, auth.NewIdentityFromUser(user), auth.TokenPurposeVerify, auth.PurposeTokenOptions{
		TTL:      time.Second,
		IssuedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	handler := auth.NewVerifyEmailHandler(repo, tokens)

	err = handler.Execute(context.Background(), auth.VerifyEmailMessage{Token: token})
	require.Error(t, err)
	assert.True(t, auth.IsTokenExpiredError(err))

	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.False(t, stored.Verified)
}

func TestVerifyEmailRejectsSessionToken(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "super-secret-pw", false, auth.RoleUser)
	repo := newMemRepoManager(user)
	tokens := auth.NewTokenService(newTestConfig(), nil)

	token, err := tokens.Generate(auth.NewIdentityFromUser(user), auth.TokenPurposeSession)
	require.NoError(t, err)

	handler := auth.NewVerifyEmailHandler(repo, tokens)

	err = handler.Execute(context.Background(), auth.VerifyEmailMessage{Token: token})
	require.Error(t, err)
	assert.True(t, auth.IsMalformedTokenError(err))
}

func TestVerifyEmailUnknownAccount(t *testing.T) {
	ghost := seedUser(t, "Ghost", "ghost@example.com", "super-secret-pw", false, auth.RoleUser)
	repo := newMemRepoManager()
	tokens := auth.NewTokenService(newTestConfig(), nil)

	token, err := tokens.Generate(auth.NewIdentityFromUser(ghost), auth.TokenPurposeVerify)
	require.NoError(t, err)

	handler := auth.NewVerifyEmailHandler(repo, tokens)

	err = handler.Execute(context.Background(), auth.VerifyEmailMessage{Token: token})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeAccountNotFound, richErr.TextCode)
}
