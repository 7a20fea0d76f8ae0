package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Pool and registry errors
const (
	// ErrCodeUnknownInstance indicates no configuration is registered for a Redis instance ID.
	ErrCodeUnknownInstance ErrorCode = "UNKNOWN_INSTANCE"
	// ErrCodePoolExhausted indicates a checkout waited past the pool's checkout timeout.
	ErrCodePoolExhausted ErrorCode = "POOL_EXHAUSTED"
	// ErrCodeRegistryClosed indicates the pool registry has been shut down.
	ErrCodeRegistryClosed ErrorCode = "REGISTRY_CLOSED"
)

// Connection/Availability errors (retryable)
const (
	// ErrCodeConnectionFailed indicates a transport-level failure talking to Redis.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Command errors
const (
	// ErrCodeCommandFailed indicates Redis answered a command with an error reply.
	ErrCodeCommandFailed ErrorCode = "COMMAND_FAILED"
	// ErrCodeNotFound indicates the requested key or resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// ErrCodeInternal indicates an internal error.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

var retryableCodes = map[ErrorCode]bool{
	ErrCodePoolExhausted:      true,
	ErrCodeConnectionFailed:   true,
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeUnknownInstance:    false,
	ErrCodeRegistryClosed:     false,
	ErrCodeCommandFailed:      false,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
