package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker reports dependency health.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// Health reports database and redis reachability. Either being down is a 503.
func Health(db, cache Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbHealthy := db != nil && db.Healthy(ctx)
		redisHealthy := cache != nil && cache.Healthy(ctx)
		status, label := http.StatusOK, "ok"
		if !dbHealthy || !redisHealthy {
			status, label = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(status, gin.H{"status": label, "db": dbHealthy, "redis": redisHealthy})
	}
}
