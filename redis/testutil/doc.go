// Package testutil provides an in-memory Redis for tests.
//
// Component runs miniredis and builds a Registry whose default instance
// points at it:
//
//	srv := redistest.NewComponent(redistest.WithPoolSize(1))
//	testutil.T(t).Setup(srv)
//
//	client := srv.Registry().Client("")
//	_ = client.Set(ctx, "key", "value", 0)
//
//	testutil.T(t).Reset(srv) // flushes all keys
package testutil
