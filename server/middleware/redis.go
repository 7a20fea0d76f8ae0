package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis"
)

const (
	redisRegistryKey = "redis_registry"
	redisWorkerKey   = "redis_worker"
	redisLoggerKey   = "redis_logger"
)

// Redis pins each request to one worker of reg. Every client the handler
// obtains through RedisClient or RedisClientFor uses that worker's pools and
// logs through log. Commands sent with the request context carry its
// request ID.
func Redis(reg *redis.Registry, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		worker := reg.NextWorker()
		c.Set(redisRegistryKey, reg)
		c.Set(redisWorkerKey, worker)
		c.Set(redisLoggerKey, log)
		c.Next()
	}
}

// RedisClient returns the request's client for the default instance. It
// panics if the Redis middleware is not installed.
func RedisClient(c *gin.Context) *redis.Client {
	return RedisClientFor(c, "")
}

// RedisClientFor returns the request's client for instance.
func RedisClientFor(c *gin.Context, instance redis.InstanceID) *redis.Client {
	reg := c.MustGet(redisRegistryKey).(*redis.Registry)
	worker := c.MustGet(redisWorkerKey).(redis.WorkerID)
	client := reg.ClientFor(instance, worker)
	if log, ok := c.Get(redisLoggerKey); ok {
		client = client.Logging(log.(*logger.Logger))
	}
	return client
}
