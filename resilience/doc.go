// Package resilience retries operations with exponential backoff.
//
// The Redis client never retries a command on its own, since only the caller
// knows whether a command is safe to repeat. Idempotent callers wrap calls:
//
//	val, err := resilience.Retry(ctx, resilience.DefaultRetryConfig(),
//	    func(ctx context.Context) (string, error) {
//	        return client.Get(ctx, "config:flags")
//	    })
//
// The default RetryIf retries POOL_EXHAUSTED and CONNECTION_FAILED and
// stops on COMMAND_FAILED, UNKNOWN_INSTANCE and REGISTRY_CLOSED.
package resilience
