package auth_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-userflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetTokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestInitializePasswordResetStoresPendingMarker(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()

	handler := auth.NewInitializePasswordResetHandler(repo, tokens, notifier, cfg)

	var res *auth.InitializePasswordResetResponse
	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{
		Email: "pepe.rone@example.com",
		OnResponse: func(resp *auth.InitializePasswordResetResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)

	var link string
	select {
	case link = <-notifier.resetSent:
	case <-time.After(time.Second):
		t.Fatal("expected a reset email")
	}
	assert.True(t, strings.HasPrefix(link, cfg.GetBaseURL()+"/reset-password?token="))

	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	require.True(t, stored.HasPendingReset())
	assert.True(t, stored.ResetExpiresAt.After(time.Now()))

	// stored marker is a digest of the mailed token, never the token itself
	token := resetTokenFromLink(t, link)
	assert.NotEqual(t, token, *stored.ResetSecretHash)
	assert.True(t, auth.CompareResetSecretAndHash(token, *stored.ResetSecretHash))
}

func TestInitializePasswordResetUnknownEmail(t *testing.T) {
	repo := newMemRepoManager()
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()

	handler := auth.NewInitializePasswordResetHandler(repo, tokens, notifier, cfg)

	var res *auth.InitializePasswordResetResponse
	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{
		Email: "nobody@example.com",
		OnResponse: func(resp *auth.InitializePasswordResetResponse) {
			res = resp
		},
	})

	// identical outcome to the known-email case, and no mail went out
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Empty(t, notifier.resetSent)
}

func TestInitializePasswordResetRollsBackOnDeliveryFailure(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()
	notifier.FailNext()

	handler := auth.NewInitializePasswordResetHandler(repo, tokens, notifier, cfg)

	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{
		Email: "pepe.rone@example.com",
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeDeliveryFailed, richErr.TextCode)

	// the pending marker was rolled back with the failed delivery
	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.False(t, stored.HasPendingReset())
}

// stallingNotifier parks the reset delivery until released, then fails it,
// so another request can land while the first is still in flight.
type stallingNotifier struct {
	started  chan struct{}
	release  chan struct{}
	fallback *recordingNotifier
}

func (n *stallingNotifier) SendVerificationEmail(ctx context.Context, email, link string) error {
	return n.fallback.SendVerificationEmail(ctx, email, link)
}

func (n *stallingNotifier) SendPasswordResetEmail(ctx context.Context, email, link string) error {
	close(n.started)
	<-n.release
	return auth.ErrDeliveryFailed
}

func TestInitializePasswordResetRollbackKeepsNewerRequest(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := &stallingNotifier{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		fallback: newRecordingNotifier(),
	}

	handler := auth.NewInitializePasswordResetHandler(repo, tokens, notifier, cfg)

	// the first request stores its marker, then stalls inside delivery
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- handler.Execute(context.Background(), auth.InitializePasswordResetMessage{
			Email: "pepe.rone@example.com",
		})
	}()

	select {
	case <-notifier.started:
	case <-time.After(time.Second):
		t.Fatal("expected the first delivery to start")
	}

	// a second request replaces the marker while the first is in flight
	second := initiateReset(t, repo, tokens, cfg, notifier.fallback, "pepe.rone@example.com")

	close(notifier.release)

	select {
	case err := <-firstErr:
		require.Error(t, err)
		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, auth.TextCodeDeliveryFailed, richErr.TextCode)
	case <-time.After(time.Second):
		t.Fatal("expected the first request to finish")
	}

	// the failed delivery rolled back only its own secret; the newer
	// request's marker survives and its token still resolves
	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	require.True(t, stored.HasPendingReset())
	assert.True(t, auth.CompareResetSecretAndHash(second, *stored.ResetSecretHash))
}

func initiateReset(t *testing.T, repo auth.RepositoryManager, tokens auth.TokenService, cfg auth.Config, notifier *recordingNotifier, email string) string {
	t.Helper()

	handler := auth.NewInitializePasswordResetHandler(repo, tokens, notifier, cfg)
	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{Email: email})
	require.NoError(t, err)

	select {
	case link := <-notifier.resetSent:
		return resetTokenFromLink(t, link)
	case <-time.After(time.Second):
		t.Fatal("expected a reset email")
		return ""
	}
}

func TestFinalizePasswordResetReplacesPassword(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()

	token := initiateReset(t, repo, tokens, cfg, notifier, "pepe.rone@example.com")

	handler := auth.NewFinalizePasswordResetHandler(repo, tokens)

	var res *auth.FinalizePasswordResetResponse
	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    token,
		Password: "brand-new-password",
		OnResponse: func(resp *auth.FinalizePasswordResetResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)

	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePasswordAndHash("brand-new-password", stored.PasswordHash))
	assert.Error(t, auth.ComparePasswordAndHash("old-password", stored.PasswordHash))

	// consuming the reset clears the marker; verification state is untouched
	assert.False(t, stored.HasPendingReset())
	assert.True(t, stored.Verified)
}

func TestFinalizePasswordResetIsSingleUse(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()

	token := initiateReset(t, repo, tokens, cfg, notifier, "pepe.rone@example.com")

	handler := auth.NewFinalizePasswordResetHandler(repo, tokens)

	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    token,
		Password: "first-new-password",
	})
	require.NoError(t, err)

	err = handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    token,
		Password: "second-new-password",
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeResetExpired, richErr.TextCode)

	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePasswordAndHash("first-new-password", stored.PasswordHash))
}

func TestFinalizePasswordResetLatestRequestWins(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()

	first := initiateReset(t, repo, tokens, cfg, notifier, "pepe.rone@example.com")
	second := initiateReset(t, repo, tokens, cfg, notifier, "pepe.rone@example.com")
	require.NotEqual(t, first, second)

	handler := auth.NewFinalizePasswordResetHandler(repo, tokens)

	// the superseded token no longer matches the stored marker
	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    first,
		Password: "from-stale-token",
	})
	require.Error(t, err)

	err = handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    second,
		Password: "from-fresh-token",
	})
	require.NoError(t, err)
}

func TestFinalizePasswordResetExpiredMarker(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)
	notifier := newRecordingNotifier()

	token := initiateReset(t, repo, tokens, cfg, notifier, "pepe.rone@example.com")

	// age the stored marker past its window
	expired := time.Now().Add(-time.Minute)
	stored, err := repo.Users().GetByID(context.Background(), user.ID.String())
	require.NoError(t, err)
	require.NoError(t, repo.Users().SavePendingReset(context.Background(), stored.ID, *stored.ResetSecretHash, expired))

	handler := auth.NewFinalizePasswordResetHandler(repo, tokens)

	err = handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    token,
		Password: "brand-new-password",
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeResetExpired, richErr.TextCode)
}

func TestFinalizePasswordResetRejectsNonResetToken(t *testing.T) {
	user := seedUser(t, "Pepe Rone", "pepe.rone@example.com", "old-password", true, auth.RoleUser)
	repo := newMemRepoManager(user)
	cfg := newTestConfig()
	tokens := auth.NewTokenService(cfg, nil)

	session, err := tokens.Generate(auth.NewIdentityFromUser(user), auth.TokenPurposeSession)
	require.NoError(t, err)

	handler := auth.NewFinalizePasswordResetHandler(repo, tokens)

	err = handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    session,
		Password: "brand-new-password",
	})
	require.Error(t, err)
	assert.True(t, auth.IsMalformedTokenError(err))
}
