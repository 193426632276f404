package core

import "fmt"

// AuthError means a user's grant is invalid or revoked. The user's turn is
// aborted for the current cycle but the user stays in the opt-in set.
type AuthError struct {
	UserID string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for user %s: %v", e.UserID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a transient API or network failure. The affected user is
// skipped for the cycle with no state mutation and retried on the next one.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError means the durable store rejected a write after a scrobble
// decision was already made. The session keeps its scrobbled flag, so the play
// stays unrecorded rather than risking a duplicate write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
