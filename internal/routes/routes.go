package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schemacanvas/internal/handlers"
	"schemacanvas/internal/middlewares"
	"schemacanvas/internal/services"
)

func RegisterRoutes(router *gin.Engine, manager *services.SessionManager) {
	api := router.Group("/api/v1")

	sessionRoutes := NewSessionRoutes(handlers.NewSessionHandler(manager))
	sessionRoutes.RegisterRoutes(api)

	// Everything below acts on one session resolved from the path.
	session := api.Group("/sessions/:session_id")
	session.Use(middlewares.ResolveSession(manager))

	tableRoutes := NewTableRoutes(handlers.NewTableHandler())
	tableRoutes.RegisterRoutes(session)

	relationshipRoutes := NewRelationshipRoutes(handlers.NewRelationshipHandler())
	relationshipRoutes.RegisterRoutes(session)

	sessionRoutes.RegisterSessionRoutes(session)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": manager.Len(),
		})
	})
}
