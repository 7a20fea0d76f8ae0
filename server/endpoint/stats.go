package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/redis/pool"
)

// StatsProvider returns a snapshot of every connection pool.
type StatsProvider func() []pool.Stats

// PoolStats is the JSON form of one pool's counters.
type PoolStats struct {
	Name      string `json:"name"`
	MaxSize   int    `json:"max_size"`
	Size      int    `json:"size"`
	Idle      int    `json:"idle"`
	Waiting   int    `json:"waiting"`
	Checkouts uint64 `json:"checkouts"`
	Waits     uint64 `json:"waits"`
	Timeouts  uint64 `json:"timeouts"`
	Dials     uint64 `json:"dials"`
	Discarded uint64 `json:"discarded"`
}

// Stats returns a handler listing the pools built so far.
func Stats(provider StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := provider()
		out := make([]PoolStats, 0, len(stats))
		for _, s := range stats {
			out = append(out, PoolStats(s))
		}
		c.JSON(http.StatusOK, gin.H{"pools": out})
	}
}
