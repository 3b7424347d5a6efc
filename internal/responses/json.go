package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schemacanvas/internal/utils"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func Success(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func Fail(c *gin.Context, statusCode int, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(statusCode, resp)
}

// Error writes err with the status of its code. Backend rejections carry the backend's own
// text in the error field so the view layer can show it as is.
func Error(c *gin.Context, err error, message string) {
	resp := APIResponse{
		Status:  "error",
		Message: message,
		Error:   utils.UserMessage(err),
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		resp.Code = appErr.Code
	} else {
		resp.Code = utils.ErrCodeInternal
	}
	status := utils.GetErrorStatus(err)
	if status == http.StatusOK {
		// Integrity warnings are a success with a caveat.
		resp.Status = "warning"
	}
	c.JSON(status, resp)
}
