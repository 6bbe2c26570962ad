package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/placafipe/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// SessionSource reports browser session state. *browser.Manager
// implements it.
type SessionSource interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET / and GET /health.
//
// The service answers 200 while it can take lookups, including before the
// warm browser has started. It answers 503 once it is shutting down, and
// when the warm browser keeps refusing new contexts (usually a crashed
// Chromium that only a restart recovers).
func Health(sessions SessionSource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sessions.Stats()
		status := readiness(stats)

		code := http.StatusOK
		if status == "closed" || status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, models.HealthResponse{
			Message: "placafipe lookup service running",
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Session: stats,
			Version: Version,
		})
	}
}

// degradedAfter is how many context creations must fail in a row before a
// warm engine is reported degraded.
const degradedAfter = 3

func readiness(s models.SessionStats) string {
	switch s.State {
	case "ready":
		if s.Warm && s.ContextFailures >= degradedAfter {
			return "degraded"
		}
	case "closing", "closed":
		return "closed"
	case "starting":
		return "starting"
	case "uninitialized":
		if s.Warm {
			return "idle"
		}
	}
	return "ready"
}
