package auth

import "fmt"

// FailureKind enumerates the fatal ways a login attempt can end. Every
// failure aborts session construction; no partial session survives.
type FailureKind int

const (
	// DriverInitFailed means no automation surface could be created.
	DriverInitFailed FailureKind = iota + 1
	// NavigationFailed means the login page did not load.
	NavigationFailed
	// FormNotFound means the credential fields never became visible.
	FormNotFound
	// CredentialEntryFailed means filling or submitting the form failed.
	CredentialEntryFailed
	// NoLoginControlFound means the redirect never happened and no
	// fallback button matched any configured keyword.
	NoLoginControlFound
	// FallbackTimeout means a fallback button was clicked but the page
	// never left the login surface.
	FallbackTimeout
)

func (k FailureKind) String() string {
	switch k {
	case DriverInitFailed:
		return "driver init failed"
	case NavigationFailed:
		return "navigation failed"
	case FormNotFound:
		return "login form not found"
	case CredentialEntryFailed:
		return "credential entry failed"
	case NoLoginControlFound:
		return "no login control found"
	case FallbackTimeout:
		return "fallback login timed out"
	default:
		return "unknown login failure"
	}
}

// LoginError is the fatal error type of the authentication flow. It
// carries the failure kind and the originating driver-level cause.
type LoginError struct {
	Kind  FailureKind
	cause error
}

func (e *LoginError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("login failed: %s", e.Kind)
}

func (e *LoginError) Unwrap() error { return e.cause }

// NewLoginError wraps a driver-level cause into the fatal taxonomy.
func NewLoginError(kind FailureKind, cause error) *LoginError {
	return &LoginError{Kind: kind, cause: cause}
}
