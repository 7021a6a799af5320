// Package auth implements the credential and token lifecycle for user
// accounts: registration, email verification, login, and the password
// reset request/consume protocol, plus the HTTP guard that enforces
// role-gated access to protected operations.
//
// Token issuance:
//   - TokenService signs HS256 bearer tokens binding a subject id, a role,
//     and a purpose claim. The same codec serves session tokens and the
//     single-use links mailed for verification and reset; Validate rejects
//     a token presented for the wrong purpose, so a mailed verify link can
//     never double as a session credential.
//
// Account lifecycle:
//   - Accounts move from unverified to verified exactly once; verification
//     is idempotent. The pending-reset sub-state (secret digest + expiry)
//     is set and cleared together, never one without the other.
//   - Command handlers (RegisterUserHandler, VerifyEmailHandler,
//     InitializePasswordResetHandler, FinalizePasswordResetHandler) own the
//     transitions and run each mutation as a single atomic store write.
//
// Notification delivery:
//   - Notifier is best-effort and bounded by a timeout. Registration
//     tolerates delivery failure (the account stays, the failure is
//     logged); a password reset request does not: its pending state is
//     rolled back so the user is never left with a link that cannot
//     arrive.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     command handlers to describe registration, login, verification, and
//     password reset events. Sinks run best-effort (errors are logged).
package auth
