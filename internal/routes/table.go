package routes

import (
	"github.com/gin-gonic/gin"

	"schemacanvas/internal/handlers"
)

type TableRoutes struct {
	tableHandler *handlers.TableHandler
}

func NewTableRoutes(tableHandler *handlers.TableHandler) *TableRoutes {
	return &TableRoutes{
		tableHandler: tableHandler,
	}
}

func (r *TableRoutes) RegisterRoutes(session *gin.RouterGroup) {
	session.POST("/tables", r.tableHandler.CreateTable)
	session.POST("/tables/drop", r.tableHandler.DropTable)

	nodes := session.Group("/nodes/:node_id")
	{
		nodes.DELETE("", r.tableHandler.RemoveTable)
		nodes.POST("/columns", r.tableHandler.AddColumn)
		nodes.POST("/columns/move", r.tableHandler.MoveColumn)
		nodes.PATCH("/columns/:column_id", r.tableHandler.UpdateColumn)
		nodes.DELETE("/columns/:column_id", r.tableHandler.DeleteColumn)
	}
}
