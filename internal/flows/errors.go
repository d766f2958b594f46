package flows

import "errors"

var (
	ErrNotFound = errors.New("flow not found")
	// ErrConflict is returned by Repo.Save when the stored version moved on.
	ErrConflict = errors.New("flow version conflict")
	// ErrMissingPayload means the stage requested lacks the state it needs.
	ErrMissingPayload     = errors.New("stage payload missing")
	ErrNotInteractive     = errors.New("ingredient list is not interactive")
	ErrNoIngredients      = errors.New("no ingredients to cook with")
	ErrDetailsUnavailable = errors.New("recipe details unavailable")

	errStale = errors.New("stale response")
)
