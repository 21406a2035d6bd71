package main

import (
	"database/sql"
	"time"

	"intercom-platform/internal/httpapi"
	"intercom-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		// CALL routes: invite fan-out is triggered by the doorman station when
		// a call starts.
		v1.POST("/calls/invite", h.SendInvite)

		// HISTORY routes: residents browse their apartment's call feed.
		v1.GET("/residents/:resident_id/calls", h.GetCallHistory)
	}
}
