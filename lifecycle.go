package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// AccountState describes where an account sits in its lifecycle.
type AccountState string

const (
	// StateUnregistered means no account exists for the identifier.
	StateUnregistered AccountState = "unregistered"
	// StateUnverified is the state right after registration.
	StateUnverified AccountState = "unverified"
	// StateVerified is terminal for the verification axis; nothing in
	// this package ever moves an account back out of it.
	StateVerified AccountState = "verified"
)

// ErrInvalidTransition is returned when a requested lifecycle change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode("INVALID_ACCOUNT_TRANSITION").
	WithCode(goerrors.CodeBadRequest)

var accountTransitions = map[AccountState]map[AccountState]struct{}{
	StateUnregistered: {
		StateUnverified: {},
	},
	StateUnverified: {
		StateVerified: {},
	},
}

// StateOf derives the lifecycle state of a loaded account.
func StateOf(u *User) AccountState {
	if u == nil {
		return StateUnregistered
	}
	if u.Verified {
		return StateVerified
	}
	return StateUnverified
}

// CanTransition reports whether the lifecycle graph allows from → to.
// Self transitions are allowed; they model idempotent operations.
func CanTransition(from, to AccountState) bool {
	if from == to {
		return true
	}
	allowed, ok := accountTransitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}

// EnsureTransition fails with the invalid-transition error when the
// graph forbids the move.
func EnsureTransition(from, to AccountState) error {
	if CanTransition(from, to) {
		return nil
	}
	return goerrors.New("invalid account state transition", goerrors.CategoryValidation).
		WithTextCode("INVALID_ACCOUNT_TRANSITION").
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(to),
		})
}
