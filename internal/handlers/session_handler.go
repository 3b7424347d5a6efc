package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"schemacanvas/internal/layout"
	"schemacanvas/internal/middlewares"
	"schemacanvas/internal/responses"
	"schemacanvas/internal/services"
	"schemacanvas/internal/utils"
)

type SessionHandler struct {
	manager *services.SessionManager
}

func NewSessionHandler(manager *services.SessionManager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	s := h.manager.Create()
	responses.Success(c, http.StatusCreated, s.Graph(), "Session created successfully")
}

// CloseSession handles DELETE /api/v1/sessions/:session_id
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, err := utils.ParseUUID(c.Param("session_id"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid session ID format")
		return
	}
	if err := h.manager.Close(id); err != nil {
		responses.Error(c, err, "Failed to close session")
		return
	}
	responses.Success(c, http.StatusOK, nil, "Session closed successfully")
}

func (h *SessionHandler) Graph(c *gin.Context) {
	responses.Success(c, http.StatusOK, middlewares.Session(c).Graph(), "")
}

// LoadSchema handles POST /api/v1/sessions/:session_id/load
func (h *SessionHandler) LoadSchema(c *gin.Context) {
	var req services.LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	s := middlewares.Session(c)
	result, err := s.LoadSchema(c.Request.Context(), req)
	if err != nil {
		responses.Error(c, err, "Failed to load schema")
		return
	}
	responses.Success(c, http.StatusOK, gin.H{
		"result": result,
		"graph":  s.Graph(),
	}, "Schema loaded successfully")
}

type layoutRequest struct {
	Direction string `json:"direction" binding:"omitempty,oneof=TB LR tb lr"`
}

// Layout handles POST /api/v1/sessions/:session_id/layout. It runs at once and supersedes any
// pending debounced pass.
func (h *SessionHandler) Layout(c *gin.Context) {
	var req layoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
			return
		}
	}
	s := middlewares.Session(c)
	dir := s.Direction()
	if req.Direction != "" {
		parsed, err := layout.ParseDirection(req.Direction)
		if err != nil {
			responses.Fail(c, http.StatusBadRequest, err, "Invalid layout direction")
			return
		}
		dir = parsed
	}
	s.FlushLayout()
	s.ApplyLayout(dir)
	responses.Success(c, http.StatusOK, s.Graph(), "Layout applied")
}

// Reconcile handles POST /api/v1/sessions/:session_id/reconcile?adopt=true
func (h *SessionHandler) Reconcile(c *gin.Context) {
	adopt, err := strconv.ParseBool(c.DefaultQuery("adopt", "false"))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid adopt flag")
		return
	}
	report, err := middlewares.Session(c).Reconcile(c.Request.Context(), adopt)
	if err != nil {
		responses.Error(c, err, "Failed to reconcile")
		return
	}
	responses.Success(c, http.StatusOK, report, "")
}

func (h *SessionHandler) SaveSnapshot(c *gin.Context) {
	n, err := middlewares.Session(c).SaveSnapshot(c.Request.Context())
	if err != nil {
		responses.Error(c, err, "Failed to save snapshot")
		return
	}
	responses.Success(c, http.StatusOK, gin.H{"saved": n}, "Snapshot saved successfully")
}

// Notifications handles GET /api/v1/sessions/:session_id/notifications?since=N
func (h *SessionHandler) Notifications(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid since parameter")
		return
	}
	responses.Success(c, http.StatusOK, middlewares.Session(c).Notifications(since), "")
}
