package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemacanvas/internal/middlewares"
	"schemacanvas/internal/models"
	"schemacanvas/internal/relationship"
	"schemacanvas/internal/responses"
)

// RelationshipHandler serves the drag, confirm and delete gestures of foreign keys.
type RelationshipHandler struct{}

func NewRelationshipHandler() *RelationshipHandler {
	return &RelationshipHandler{}
}

// Connect handles POST /api/v1/sessions/:session_id/connections
func (h *RelationshipHandler) Connect(c *gin.Context) {
	var req relationship.Connection
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	pending, err := middlewares.Session(c).Connect(req)
	if err != nil {
		responses.Error(c, err, "Invalid relationship")
		return
	}
	responses.Success(c, http.StatusOK, gin.H{
		"pending":  pending,
		"decision": pending.DefaultDecision(),
	}, "Relationship awaiting confirmation")
}

func (h *RelationshipHandler) Pending(c *gin.Context) {
	pending, ok := middlewares.Session(c).Pending()
	if !ok {
		responses.Success(c, http.StatusOK, gin.H{"pending": nil}, "No relationship awaiting confirmation")
		return
	}
	responses.Success(c, http.StatusOK, gin.H{
		"pending":  pending,
		"decision": pending.DefaultDecision(),
	}, "")
}

// Confirm handles POST /api/v1/sessions/:session_id/connections/confirm
func (h *RelationshipHandler) Confirm(c *gin.Context) {
	var req relationship.Decision
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	// The binding rule accepts any casing; the editor wants the canonical form.
	req.OnDelete, _ = models.ParseReferentialAction(string(req.OnDelete))
	req.OnUpdate, _ = models.ParseReferentialAction(string(req.OnUpdate))

	edge, err := middlewares.Session(c).Confirm(c.Request.Context(), req)
	if err != nil {
		responses.Error(c, err, "Failed to create relationship")
		return
	}
	responses.Success(c, http.StatusCreated, edge, "Relationship created successfully")
}

func (h *RelationshipHandler) Cancel(c *gin.Context) {
	if err := middlewares.Session(c).Cancel(); err != nil {
		responses.Error(c, err, "Nothing to cancel")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Relationship cancelled")
}

// DeleteEdge handles DELETE /api/v1/sessions/:session_id/edges/:edge_id
func (h *RelationshipHandler) DeleteEdge(c *gin.Context) {
	if err := middlewares.Session(c).DeleteEdge(c.Request.Context(), c.Param("edge_id")); err != nil {
		responses.Error(c, err, "Failed to delete relationship")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Relationship deleted successfully")
}
