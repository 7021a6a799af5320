package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse looks identical whether or not the
// email maps to an account, so callers cannot probe the user table.
type InitializePasswordResetResponse struct {
	Success bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier Notifier
	cfg      Config
	activity ActivitySink
	logger   Logger
	clock    Clock
}

func NewInitializePasswordResetHandler(repo RepositoryManager, tokens TokenService, notifier Notifier, cfg Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
		clock:    time.Now,
	}
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) WithClock(clock Clock) *InitializePasswordResetHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		// an unknown email gets the same reply as a known one
		if repository.IsRecordNotFound(err) {
			h.respond(event)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, expiresAt, err := MintPurposeToken(h.tokens, NewIdentityFromUser(user), TokenPurposeReset, PurposeTokenOptions{
		IssuedAt: h.clock(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint password reset token")
	}

	secretHash := HashResetSecret(token)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.repo.Users().SavePendingResetTx(ctx, tx, user.ID, secretHash, expiresAt)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store pending password reset")
	}

	// delivery is synchronous here: if the mail cannot go out we roll the
	// pending reset back and surface the failure, unlike registration. The
	// rollback targets the exact secret this request stored; if a newer
	// request has already replaced it, that marker stays untouched.
	link := fmt.Sprintf("%s/reset-password?token=%s", h.cfg.GetBaseURL(), token)
	if err := h.notifier.SendPasswordResetEmail(ctx, user.Email, link); err != nil {
		if clearErr := h.repo.Users().ClearPendingReset(ctx, user.ID, secretHash); clearErr != nil {
			h.logger.Error("failed to roll back pending reset: %v", clearErr)
		}
		h.logger.Warn("password reset email delivery failed: %v", err)
		return ErrDeliveryFailed
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
		OccurredAt: h.clock(),
	})

	h.respond(event)

	return nil
}

func (h *InitializePasswordResetHandler) respond(event InitializePasswordResetMessage) {
	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{Success: true})
	}
}
