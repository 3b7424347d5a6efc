package routes

import (
	"github.com/gin-gonic/gin"

	"schemacanvas/internal/handlers"
)

type RelationshipRoutes struct {
	handler *handlers.RelationshipHandler
}

func NewRelationshipRoutes(handler *handlers.RelationshipHandler) *RelationshipRoutes {
	return &RelationshipRoutes{handler: handler}
}

func (r *RelationshipRoutes) RegisterRoutes(session *gin.RouterGroup) {
	connections := session.Group("/connections")
	{
		connections.POST("", r.handler.Connect)
		connections.GET("/pending", r.handler.Pending)
		connections.POST("/confirm", r.handler.Confirm)
		connections.POST("/cancel", r.handler.Cancel)
	}
	session.DELETE("/edges/:edge_id", r.handler.DeleteEdge)
}
