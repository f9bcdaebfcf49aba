package gitx

import "errors"

// Common errors returned by git operations. Check with errors.Is:
//
//	if errors.Is(err, gitx.ErrNotARepo) {
//	    // outside any git repository
//	}
var (
	// ErrNotARepo is returned when the path is not inside a git repository.
	ErrNotARepo = errors.New("not a git repository")

	// ErrRefNotFound is returned when a ref cannot be resolved.
	ErrRefNotFound = errors.New("reference not found")

	// ErrTagExists is returned when creating a tag that already exists.
	ErrTagExists = errors.New("tag already exists")

	// ErrTagNotFound is returned when operating on a missing tag.
	ErrTagNotFound = errors.New("tag not found")

	// ErrNoRemote is returned when an operation requires a remote but
	// none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrPushRejected is returned when a push is rejected by the remote.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrDirtyTree is returned when an operation requires a clean
	// working tree but there are uncommitted changes.
	ErrDirtyTree = errors.New("working tree has uncommitted changes")

	// ErrSigningUnavailable is returned when a signed tag is requested
	// but no signing key is configured.
	ErrSigningUnavailable = errors.New("gpg signing not configured")
)

// IsRetryable returns true if the error is likely to succeed on retry,
// typically transient network failures during push or fetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPushRejected)
}

// IsUserActionRequired returns true if the error needs the operator to
// fix repository state before the workflow can continue.
func IsUserActionRequired(err error) bool {
	return errors.Is(err, ErrDirtyTree) ||
		errors.Is(err, ErrSigningUnavailable) ||
		errors.Is(err, ErrTagExists)
}

// IsFatal returns true for non-recoverable environment problems.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotARepo)
}
