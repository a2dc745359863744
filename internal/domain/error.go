package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTaskTerminal       = errors.New("task already in terminal state")
	ErrTaskNotReady       = errors.New("task has no result yet")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrRateLimited        = errors.New("too many requests")
	ErrProviderExhausted  = errors.New("no try-on provider available")
	ErrNoResultImage      = errors.New("no result image in provider output")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
