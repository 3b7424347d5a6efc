package routes

import (
	"github.com/gin-gonic/gin"

	"schemacanvas/internal/handlers"
)

type SessionRoutes struct {
	handler *handlers.SessionHandler
}

func NewSessionRoutes(handler *handlers.SessionHandler) *SessionRoutes {
	return &SessionRoutes{handler: handler}
}

func (r *SessionRoutes) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/sessions", r.handler.CreateSession)
	router.DELETE("/sessions/:session_id", r.handler.CloseSession)
}

// RegisterSessionRoutes mounts the per-session endpoints on a group that already resolved
// the session.
func (r *SessionRoutes) RegisterSessionRoutes(session *gin.RouterGroup) {
	session.GET("/graph", r.handler.Graph)
	session.POST("/load", r.handler.LoadSchema)
	session.POST("/layout", r.handler.Layout)
	session.POST("/reconcile", r.handler.Reconcile)
	session.POST("/snapshot", r.handler.SaveSnapshot)
	session.GET("/notifications", r.handler.Notifications)
}
