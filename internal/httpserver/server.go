package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davekhr/telemetry-dashboard/internal/auth"
	"github.com/davekhr/telemetry-dashboard/internal/broadcast"
	"github.com/davekhr/telemetry-dashboard/internal/config"
	"github.com/davekhr/telemetry-dashboard/internal/handlers"
	"github.com/davekhr/telemetry-dashboard/internal/ingest"
	"github.com/davekhr/telemetry-dashboard/internal/store"
)

// NewRouter wires the full HTTP surface.
// Operational: /health, /ready, /metrics
// Viewers:     /, /devices, /stream
// Devices:     POST /:device_id/data
func NewRouter(cfg config.Config, st *store.PostgresStore, svc *ingest.Service, bc *broadcast.Broadcaster) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authn := auth.NewSharedSecret(cfg.SharedSecret)
	handlers.RegisterIngestRoutes(r, authn, svc)
	handlers.RegisterDashboardRoutes(r, svc, bc, cfg.RecentWindow)

	return r
}
