// Package errors provides the typed failure values returned by rediskit.
//
// Every failure surfaced by the pool registry, pools and clients is an
// *AppError carrying a machine-readable ErrorCode (UNKNOWN_INSTANCE,
// POOL_EXHAUSTED, CONNECTION_FAILED, COMMAND_FAILED, REGISTRY_CLOSED, ...),
// a retryable flag and the underlying cause. Nothing in rediskit retries on
// its own; callers decide based on Retryable or HasCode.
//
//	if errors.HasCode(err, errors.ErrCodePoolExhausted) {
//	    // back off and try again
//	}
package errors
