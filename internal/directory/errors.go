package directory

import "errors"

// Domain-specific errors for directory operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoAccounts is returned when the cache is created without credentials.
	ErrNoAccounts = errors.New("directory: no account credentials configured")

	// ErrPlaceholderKey is returned for an empty or "YOUR_..." credential.
	ErrPlaceholderKey = errors.New("directory: placeholder account credential")

	// ErrClientUnavailable is returned when a Client cannot be created for an account.
	ErrClientUnavailable = errors.New("directory: account client unavailable")

	// ErrMergeAborted is returned when a directory rebuild stops partway through.
	// The cached directory is discarded and the next call rebuilds from scratch.
	ErrMergeAborted = errors.New("directory: merge aborted")
)
