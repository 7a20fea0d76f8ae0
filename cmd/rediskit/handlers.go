package main

import (
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis"
	"github.com/kbukum/rediskit/server"
	"github.com/kbukum/rediskit/server/endpoint"
	"github.com/kbukum/rediskit/server/middleware"
	"github.com/kbukum/rediskit/version"
)

const maxValueSize = 1 << 20

// routes mounts the key/value, publish, stats and version API on srv and returns
// every route the engine serves.
func routes(srv *server.Server, reg *redis.Registry, log *logger.Logger) gin.RoutesInfo {
	engine := srv.Engine()
	engine.GET("/stats", endpoint.Stats(reg.Stats))
	engine.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, version.Get()) })

	api := engine.Group("/", middleware.Redis(reg, log))
	api.GET("/kv/:key", getKey)
	api.PUT("/kv/:key", putKey)
	api.DELETE("/kv/:key", deleteKey)
	api.POST("/publish/:channel", publish)

	return engine.Routes()
}

// client picks the instance named by the "instance" query parameter, or the
// default.
func client(c *gin.Context) *redis.Client {
	return middleware.RedisClientFor(c, redis.InstanceID(c.Query("instance")))
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxValueSize+1))
	if err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return nil, false
	}
	if len(body) > maxValueSize {
		server.RespondWithError(c, errors.InvalidInput("body", "value exceeds 1MiB"))
		return nil, false
	}
	return body, true
}

func getKey(c *gin.Context) {
	key := c.Param("key")
	value, err := client(c).Get(c.Request.Context(), key)
	if stderrors.Is(err, redis.Nil) {
		server.RespondWithError(c, errors.NotFound("key", key))
		return
	}
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"key": key, "value": value})
}

// putKey stores the request body. An optional ttl query parameter such as
// "30s" sets an expiration.
func putKey(c *gin.Context) {
	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			server.RespondWithError(c, errors.InvalidInput("ttl", "must be a positive duration"))
			return
		}
		ttl = d
	}

	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := client(c).Set(c.Request.Context(), c.Param("key"), body, ttl); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

func deleteKey(c *gin.Context) {
	n, err := client(c).Del(c.Request.Context(), c.Param("key"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"deleted": n})
}

func publish(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	n, err := client(c).Publish(c.Request.Context(), c.Param("channel"), body)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, server.DataResponse{Data: gin.H{"receivers": n}})
}
