package web

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers, rps float64, burst int) {
	// Health endpoints (no rate limit)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)

	// API routes with rate limiting and content-type validation
	apiRateLimiter := RateLimiter(rps, burst)
	api := r.Group("/api")
	api.Use(apiRateLimiter)
	api.Use(RequireJSONContentType())
	{
		api.GET("/activity", h.Activity)

		api.POST("/owners/:owner/sync/:source", h.APITriggerSync)
		api.GET("/owners/:owner/events", h.APIListEvents)
		api.POST("/owners/:owner/events", h.APICreateEvent)
		api.GET("/owners/:owner/pending", h.APIPendingEvents)
		api.GET("/owners/:owner/errors", h.APIErroredEvents)
		api.GET("/owners/:owner/sync-logs", h.APISyncLogs)
		api.GET("/owners/:owner/clients", h.APIListClients)
		api.POST("/owners/:owner/clients", h.APICreateClient)
		api.GET("/owners/:owner/sessions", h.APIListSessions)
		api.POST("/owners/:owner/sessions", h.APICreateSession)

		api.GET("/events/:id", h.APIGetEvent)
		api.PUT("/events/:id", h.APIUpdateEvent)
		api.DELETE("/events/:id", h.APIDeleteEvent)
		api.POST("/events/:id/retry", h.APIRetryEvent)
	}
}
