package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. PasswordHash and the pending-reset pair are
// never serialized to clients.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name            string     `bun:"name,notnull" json:"name,omitempty"`
	Email           string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	Role            UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	Verified        bool       `bun:"is_email_verified" json:"is_email_verified"`
	ResetSecretHash *string    `bun:"reset_secret_hash,nullzero" json:"-"`
	ResetExpiresAt  *time.Time `bun:"reset_expires_at,nullzero" json:"-"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureRole defaults an empty role to RoleUser.
func (u *User) EnsureRole() {
	if u.Role == "" {
		u.Role = RoleUser
	}
}

// HasPendingReset reports whether a reset request is outstanding. The two
// fields are always written together, but we check both so a partially
// migrated row never passes for a pending reset.
func (u *User) HasPendingReset() bool {
	return u.ResetSecretHash != nil && u.ResetExpiresAt != nil
}

// Public returns the fields safe to hand to any client.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Verified: u.Verified,
	}
}

// PublicUser is the client-facing projection of an account.
type PublicUser struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     UserRole  `json:"role"`
	Verified bool      `json:"is_email_verified"`
}

// NormalizeEmail is applied on every lookup and insert so the unique key
// is case and whitespace insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUserDefaults(u *User) {
	u.Email = NormalizeEmail(u.Email)
	u.EnsureRole()
}
