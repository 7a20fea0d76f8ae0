// Package component defines lifecycle-managed infrastructure and a Registry
// that starts components in registration order and stops them in reverse.
//
//	reg := component.NewRegistry(log)
//	_ = reg.Register(redis.NewComponent(settings, log))
//	if err := reg.StartAll(ctx); err != nil { ... }
//	defer reg.StopAll(context.Background())
package component
