package session

import "errors"

var (
	// ErrAuthenticationFailed means the backend rejected the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrMFARequired means the account needs a one-time code to log in.
	ErrMFARequired = errors.New("mfa code required")
	// ErrSessionInvalid means the backend rejected the stored token.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrNetwork means the backend could not be reached or answered 5xx.
	ErrNetwork = errors.New("backend unreachable")
	// ErrMalformedResponse means the backend answered with an unusable body.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrLogoutTransport means the revoke call failed. Local teardown still
	// happened.
	ErrLogoutTransport = errors.New("logout revoke failed")
	// ErrCorruptSession means persisted session data was unreadable and has
	// been cleared.
	ErrCorruptSession = errors.New("persisted session is corrupt")
	// ErrSessionExpired means the persisted token had already expired.
	ErrSessionExpired = errors.New("persisted session expired")
	// ErrNoSession means an operation needed a session and none exists.
	ErrNoSession = errors.New("no active session")
	// ErrSuperseded means a later lifecycle call started before this one
	// finished, so this one did not touch the store.
	ErrSuperseded = errors.New("superseded by a newer session operation")
)
