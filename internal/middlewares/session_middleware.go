package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schemacanvas/internal/responses"
	"schemacanvas/internal/services"
	"schemacanvas/internal/utils"
)

const sessionKey = "session"

// ResolveSession loads the session named by the :session_id path parameter and stores it in
// the context for handlers.
func ResolveSession(manager *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := utils.ParseUUID(c.Param("session_id"))
		if err != nil {
			responses.Fail(c, http.StatusBadRequest, err, "Invalid session ID format")
			c.Abort()
			return
		}
		session, err := manager.Get(id)
		if err != nil {
			responses.Error(c, err, "Session not found")
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// Session returns the session set by ResolveSession.
func Session(c *gin.Context) *services.CanvasSession {
	return c.MustGet(sessionKey).(*services.CanvasSession)
}
