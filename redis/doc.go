// Package redis manages connection pools for any number of named Redis
// instances, one pool per (instance, worker) pair.
//
// A Registry resolves a PoolKey to its pool, creating the pool on first use
// from the instance's Config. Clients are thin handles over the Registry:
//
//	instances, _ := redis.NewInstances(settings.Instances)
//	reg := redis.NewRegistry(instances, redis.WithLogger(log))
//	defer reg.Shutdown(ctx)
//
//	cache := reg.Client("cache")
//	_ = cache.Set(ctx, "k", "v", time.Minute)
//	v, err := cache.Get(ctx, "k")
//
// A client from Registry.Client spreads its calls over the worker pools in
// turn. A client from Registry.ClientFor stays on one worker, which is what
// the HTTP middleware hands to each request.
//
// # Errors
//
// Failures are *errors.AppError values carrying one of the codes
// UNKNOWN_INSTANCE, POOL_EXHAUSTED, CONNECTION_FAILED, COMMAND_FAILED or
// REGISTRY_CLOSED:
//
//	if errors.HasCode(err, errors.ErrCodePoolExhausted) { ... }
//
// A missing key is reported as Nil by Get, GetJSON and the reply helpers.
//
// # Pub/Sub
//
// Subscriptions use one dedicated connection per instance that is never part
// of a command pool:
//
//	err := cache.Subscribe(ctx, []string{"events"},
//	    func(m redis.Message) { ... }, nil, nil)
//
// # Drivers
//
// Pooled connections use go-redis by default. Setting driver: redigo in an
// instance's config switches its command pools to redigo. Pub/sub always
// uses go-redis.
package redis
