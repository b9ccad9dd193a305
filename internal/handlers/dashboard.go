package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/davekhr/telemetry-dashboard/internal/broadcast"
	"github.com/davekhr/telemetry-dashboard/internal/ingest"
)

// RegisterDashboardRoutes registers the viewer-facing endpoints.
//
// GET /         recent-window view seeding the dashboard (newest last)
// GET /devices  per-device loss summaries from the tracker
// GET /stream   SSE channel, one "packet" event per accepted ingestion
func RegisterDashboardRoutes(r gin.IRoutes, svc *ingest.Service, bc *broadcast.Broadcaster, recentWindow int) {
	r.GET("/", func(c *gin.Context) {
		n := recentWindow
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			if v < n {
				n = v
			}
		}

		packets, err := svc.RecentView(c.Request.Context(), n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"packets": packets})
	})

	r.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"devices": svc.DeviceSummaries()})
	})

	r.GET("/stream", func(c *gin.Context) {
		id, events := bc.Subscribe()
		defer bc.Unsubscribe(id)

		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		// The subscription carries only packets accepted after this point;
		// the viewer seeds its initial state from GET / first.
		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent("packet", ev)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})
}
