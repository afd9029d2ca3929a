package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrSessionClosed      = errors.New("chart session is closed")

	// Market Data Errors
	ErrFeedUnavailable  = errors.New("market data feed is unavailable")
	ErrConnectionFailed = errors.New("failed to connect to the market data feed")
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrMalformedEvent   = errors.New("malformed market data event")

	// Chart Errors
	ErrInvalidDrawing = errors.New("invalid drawing record")
	ErrExitRejected   = errors.New("take-profit/stop-loss level rejected")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
