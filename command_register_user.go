package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User    *PublicUser
	Success bool
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier Notifier
	cfg      Config
	activity ActivitySink
	logger   Logger
	clock    Clock

	// how long the fire-and-forget verification mail may take
	sendTimeout time.Duration
}

func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService, notifier Notifier, cfg Config) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:        repo,
		tokens:      tokens,
		notifier:    notifier,
		cfg:         cfg,
		activity:    noopActivitySink{},
		logger:      defLogger{},
		clock:       time.Now,
		sendTimeout: time.Second * 15,
	}
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) WithClock(clock Clock) *RegisterUserHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email := NormalizeEmail(event.Email)

		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, email); err == nil {
			return ErrEmailConflict
		} else if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing account")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		role, ok := ParseRole(event.Role)
		if !ok {
			role = RoleUser
		}

		user.Name = event.Name
		user.Email = email
		user.PasswordHash = hash
		user.Role = role
		user.Verified = false
		if event.UseHashid {
			if id, err := hashid.NewUUID(email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	token, err := h.tokens.Generate(NewIdentityFromUser(user), TokenPurposeVerify)
	if err != nil {
		// the account exists either way; the user can re-request verification
		h.logger.Error("failed to mint verification token: %v", err)
	} else {
		go h.deliverVerification(user.Email, token)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
		OccurredAt: h.clock(),
	})

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{
			User:    user.Public(),
			Success: true,
		})
	}

	return nil
}

// deliverVerification runs outside the request lifecycle. A failed
// delivery is logged and swallowed: registration already succeeded and
// the mail can be re-sent.
func (h *RegisterUserHandler) deliverVerification(email, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()

	link := fmt.Sprintf("%s/verify-email?token=%s", h.cfg.GetBaseURL(), token)
	if err := h.notifier.SendVerificationEmail(ctx, email, link); err != nil {
		h.logger.Warn("verification email delivery failed: %v", err)
	}
}
