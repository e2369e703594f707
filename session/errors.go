package session

import "errors"

var (
	// ErrSessionExpired indicates the session could not be refreshed and has
	// been cleared; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrLogoutInProgress indicates a refresh was skipped because a logout is
	// underway.
	ErrLogoutInProgress = errors.New("logout in progress")
)
