package redis

import "fmt"

// InstanceID names a configured Redis endpoint.
type InstanceID string

// DefaultInstance is used when the caller does not name an instance.
const DefaultInstance InstanceID = "default"

// WorkerID identifies the concurrency worker a pool is dedicated to.
type WorkerID string

// PoolKey identifies one pool in a Registry. Two keys are equal iff both the
// instance and the worker are equal.
type PoolKey struct {
	Instance InstanceID
	Worker   WorkerID
}

// Key builds a PoolKey, substituting DefaultInstance for an empty instance.
func Key(instance InstanceID, worker WorkerID) PoolKey {
	if instance == "" {
		instance = DefaultInstance
	}
	return PoolKey{Instance: instance, Worker: worker}
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s", k.Instance, k.Worker)
}
