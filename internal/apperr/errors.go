// Package apperr holds the sentinel errors shared by the storage, engine and
// HTTP layers. Match them with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound means a referenced wishlist, build or cached record is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput rejects a request before anything is persisted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict covers duplicate imports and remote SHA mismatches.
	ErrConflict = errors.New("conflict")

	// ErrUpstream wraps failures talking to Bungie, the season tables or GitHub.
	ErrUpstream = errors.New("upstream unavailable")
)
