package domain

import "errors"

// Domain errors
var (
	ErrAlreadyWhitelisted = errors.New("player already whitelisted")
	ErrNotWhitelisted     = errors.New("player not whitelisted")
	ErrSessionNotFound    = errors.New("no active purgatory session")
	ErrEscalated          = errors.New("linking temporarily blocked after too many attempts")
	ErrRateLimited        = errors.New("event rate limit exceeded")
	ErrInvalidName        = errors.New("invalid player name")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsConflictError checks if an error indicates a state conflict rather than a fault
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyWhitelisted) || errors.Is(err, ErrEscalated)
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNotWhitelisted)
}
