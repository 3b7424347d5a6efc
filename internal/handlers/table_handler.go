package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemacanvas/internal/middlewares"
	"schemacanvas/internal/models"
	"schemacanvas/internal/responses"
	"schemacanvas/internal/services"
)

// TableHandler serves table and column edits on a session's canvas.
type TableHandler struct{}

func NewTableHandler() *TableHandler {
	return &TableHandler{}
}

type createTableRequest struct {
	Name     string           `json:"name" binding:"required"`
	Position *models.Position `json:"position"`
}

// CreateTable handles POST /api/v1/sessions/:session_id/tables
func (h *TableHandler) CreateTable(c *gin.Context) {
	var req createTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	node, err := middlewares.Session(c).CreateTable(req.Name, req.Position)
	if err != nil {
		responses.Error(c, err, "Error while creating the table")
		return
	}
	responses.Success(c, http.StatusCreated, node, "Table created successfully")
}

// DropTable handles POST /api/v1/sessions/:session_id/tables/drop. The table is placed at once
// and filled in the background, so the reply is 202 with the drop's initial state.
func (h *TableHandler) DropTable(c *gin.Context) {
	var req services.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	drop, err := middlewares.Session(c).DropTable(req)
	if err != nil {
		responses.Error(c, err, "Error while adding the table")
		return
	}
	responses.Success(c, http.StatusAccepted, drop, "Table is being added")
}

// RemoveTable handles DELETE /api/v1/sessions/:session_id/nodes/:node_id
func (h *TableHandler) RemoveTable(c *gin.Context) {
	removed, err := middlewares.Session(c).RemoveTable(c.Param("node_id"))
	if err != nil {
		responses.Error(c, err, "Error while removing the table")
		return
	}
	responses.Success(c, http.StatusOK, gin.H{"removedEdges": removed}, "Table removed from canvas")
}

func (h *TableHandler) AddColumn(c *gin.Context) {
	var req services.ColumnInput
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	edit, err := middlewares.Session(c).AddColumn(c.Param("node_id"), req)
	if err != nil {
		responses.Error(c, err, "Error while adding the column")
		return
	}
	responses.Success(c, http.StatusCreated, edit, "Column added")
}

func (h *TableHandler) UpdateColumn(c *gin.Context) {
	var req services.ColumnInput
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	edit, err := middlewares.Session(c).UpdateColumn(c.Param("node_id"), c.Param("column_id"), req)
	if err != nil {
		responses.Error(c, err, "Error while updating the column")
		return
	}
	responses.Success(c, http.StatusOK, edit, "Column updated")
}

func (h *TableHandler) DeleteColumn(c *gin.Context) {
	edit, err := middlewares.Session(c).DeleteColumn(c.Param("node_id"), c.Param("column_id"))
	if err != nil {
		responses.Error(c, err, "Error while deleting the column")
		return
	}
	responses.Success(c, http.StatusOK, edit, "Column deleted")
}

type moveColumnRequest struct {
	ColumnID string `json:"columnId" binding:"required"`
	Index    *int   `json:"index" binding:"required,min=0"`
}

// MoveColumn handles POST /api/v1/sessions/:session_id/nodes/:node_id/columns/move
func (h *TableHandler) MoveColumn(c *gin.Context) {
	var req moveColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	edit, err := middlewares.Session(c).MoveColumn(c.Param("node_id"), req.ColumnID, *req.Index)
	if err != nil {
		responses.Error(c, err, "Error while moving the column")
		return
	}
	responses.Success(c, http.StatusOK, edit, "Column moved")
}
