package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AuthControllerRoutes are the paths the controller mounts its handlers
// on.
type AuthControllerRoutes struct {
	Register       string
	VerifyEmail    string
	Login          string
	Logout         string
	ForgotPassword string
	ResetPassword  string
	Profile        string
	Users          string
	Health         string
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auther   *RouteAuthenticator
	Tokens   TokenService
	Notifier Notifier
	Cfg      Config
	Activity ActivitySink
	Routes   *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Activity: noopActivitySink{},
		Routes: &AuthControllerRoutes{
			Register:       "/auth/register",
			VerifyEmail:    "/auth/verify-email",
			Login:          "/auth/login",
			Logout:         "/auth/logout",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
			Profile:        "/users/profile",
			Users:          "/users",
			Health:         "/health",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.Cfg == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerTokens(tokens TokenService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Tokens = tokens
		return c
	}
}

func WithControllerNotifier(notifier Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = notifier
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cfg = cfg
		return c
	}
}

func WithControllerActivitySink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

// RegisterAuthRoutes mounts the controller on the app. Admin routes get
// the role-gated guard, profile only needs a valid session.
func RegisterAuthRoutes(app *fiber.App, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.Register)
	app.Get(controller.Routes.VerifyEmail, controller.VerifyEmail)
	app.Post(controller.Routes.Login, controller.Login)
	app.Post(controller.Routes.Logout, controller.Logout)
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword)
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword)

	protected := controller.Auther.ProtectedRoute()
	adminOnly := controller.Auther.ProtectedRoute(RoleAdmin)

	app.Get(controller.Routes.Profile, protected, controller.Profile)
	app.Get(controller.Routes.Users, adminOnly, controller.ListUsers)
	app.Put(controller.Routes.Users+"/:id/role", adminOnly, controller.UpdateUserRole)
	app.Delete(controller.Routes.Users+"/:id", adminOnly, controller.DeleteUser)

	app.Get(controller.Routes.Health, controller.Health)

	return controller
}

// RegisterRequest payload
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) Register(ctx *fiber.Ctx) error {
	payload := new(RegisterRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	var res *RegisterUserResponse
	req := RegisterUserMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	handler := NewRegisterUserHandler(a.Repo, a.Tokens, a.Notifier, a.Cfg).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Registration successful. Please check your email to verify your account.",
		"user":    res.User,
	})
}

func (a *AuthController) VerifyEmail(ctx *fiber.Ctx) error {
	token := ctx.Query("token")
	if token == "" {
		return a.respondError(ctx, ErrTokenMissing)
	}

	var res *VerifyEmailResponse
	req := VerifyEmailMessage{
		Token: token,
		OnResponse: func(resp *VerifyEmailResponse) {
			res = resp
		},
	}

	handler := NewVerifyEmailHandler(a.Repo, a.Tokens).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		return a.respondError(ctx, err)
	}

	message := "Email verified successfully. You can now log in."
	if res.AlreadyVerified {
		message = "Email is already verified. You can log in."
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the session should outlive the
// default cookie duration
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(ctx *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	token, identity, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user": fiber.Map{
			"id":    identity.ID(),
			"name":  identity.Name(),
			"email": identity.Email(),
			"role":  identity.Role(),
		},
	})
}

func (a *AuthController) Logout(ctx *fiber.Ctx) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ForgotPassword(ctx *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Tokens, a.Notifier, a.Cfg).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		return a.respondError(ctx, err)
	}

	// same reply whether or not the account exists
	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "If an account exists with this email, a password reset link has been sent.",
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) ResetPassword(ctx *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	req := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	}

	handler := NewFinalizePasswordResetHandler(a.Repo, a.Tokens).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)

	if err := handler.Execute(ctx.UserContext(), req); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "Password has been reset successfully. You can now log in with your new password.",
	})
}

func (a *AuthController) Profile(ctx *fiber.Ctx) error {
	claims, err := claimsFromLocals(ctx, a.Cfg.GetContextKey())
	if err != nil {
		return a.respondError(ctx, err)
	}

	user, err := a.Repo.Users().GetByID(ctx.UserContext(), claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return a.respondError(ctx, ErrAccountNotFound)
		}
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"user":    user.Public(),
	})
}

func (a *AuthController) ListUsers(ctx *fiber.Ctx) error {
	users, err := a.Repo.Users().List(ctx.UserContext())
	if err != nil {
		return a.respondError(ctx, err)
	}

	records := make([]*PublicUser, 0, len(users))
	for _, user := range users {
		records = append(records, user.Public())
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"users":   records,
		"count":   len(records),
	})
}

// UpdateRoleRequest payload
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// Validate will run validation rules
func (r UpdateRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(RoleUser, RoleAdmin)),
	)
}

func (a *AuthController) UpdateUserRole(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return a.respondError(ctx, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	payload := new(UpdateRoleRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	role, ok := ParseRole(payload.Role)
	if !ok {
		return a.respondError(ctx, goerrors.New("invalid role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	user, err := a.Repo.Users().UpdateRole(ctx.UserContext(), id, role)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return a.respondError(ctx, ErrAccountNotFound)
		}
		return a.respondError(ctx, err)
	}

	recordActivity(ctx.UserContext(), a.Activity, a.Logger, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		Actor:     actorFromLocals(ctx, a.Cfg.GetContextKey()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"role": user.Role,
		},
	})

	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "User role updated successfully",
		"user":    user.Public(),
	})
}

func (a *AuthController) DeleteUser(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return a.respondError(ctx, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	if err := a.Repo.Users().Delete(ctx.UserContext(), id); err != nil {
		if repository.IsRecordNotFound(err) {
			return a.respondError(ctx, ErrAccountNotFound)
		}
		return a.respondError(ctx, err)
	}

	recordActivity(ctx.UserContext(), a.Activity, a.Logger, ActivityEvent{
		EventType: ActivityEventAccountDeleted,
		Actor:     actorFromLocals(ctx, a.Cfg.GetContextKey()),
		UserID:    id.String(),
	})

	return ctx.JSON(fiber.Map{
		"success": true,
		"message": "User deleted successfully",
	})
}

func (a *AuthController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"status": "ok",
	})
}

func (a *AuthController) badPayload(ctx *fiber.Ctx, err error) error {
	a.Logger.Error("failed to parse payload: %v", err)
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Failed to parse request body",
	})
}

func (a *AuthController) invalidPayload(ctx *fiber.Ctx, err error) error {
	a.Logger.Error("failed to validate payload: %v", err)
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation failed",
		"errors":  FormatValidationErrorToMap(err),
	})
}

func (a *AuthController) respondError(ctx *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	code := richErr.Code
	if code == 0 {
		code = fiber.StatusInternalServerError
	}

	if a.Debug {
		fmt.Println("======= AUTH ERROR ======")
		fmt.Println(print.MaybePrettyJSON(richErr))
		fmt.Println("=========================")
	}

	return ctx.Status(code).JSON(fiber.Map{
		"success": false,
		"message": richErr.Message,
		"code":    richErr.TextCode,
	})
}

func claimsFromLocals(ctx *fiber.Ctx, key string) (AuthClaims, error) {
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, ErrTokenMissing
	}

	claims, ok := raw.(AuthClaims)
	if !ok {
		return nil, ErrUnableToMapClaims
	}

	return claims, nil
}

func actorFromLocals(ctx *fiber.Ctx, key string) ActorRef {
	claims, err := claimsFromLocals(ctx, key)
	if err != nil {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: claims.UserID(), Type: "user"}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verr validation.Errors
	if errors.As(err, &verr) {
		for field, ferr := range verr {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}
