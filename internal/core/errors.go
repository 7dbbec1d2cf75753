package core

import "errors"

// Error taxonomy for the router boundary. Provider and storage failures are
// converted into system-role messages there; they never terminate the
// session loop.
var (
	// ErrProviderUnavailable covers network failures, timeouts and non-2xx
	// answers from an external API.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrAuthExpired means the calendar credential is invalid and cannot be
	// refreshed; the user has to reconnect. Only the calendar branch is
	// affected.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrStorageUnavailable covers read/write failures of the session store.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
