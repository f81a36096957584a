package server

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/apperr"
)

// envelope is the uniform response shape for every API endpoint.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, data interface{}, msg string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: msg})
}

// respondErr maps an operation error to its HTTP status. Internal
// errors are logged with their cause but reported generically.
func respondErr(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "internal server error"
	}
	c.JSON(status, envelope{Success: false, Error: msg})
}
