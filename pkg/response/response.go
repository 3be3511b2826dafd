package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/campusdesk/student-admin-api/pkg/errors"
)

// MessageBody is the body for confirmation-only responses.
type MessageBody struct {
	Message string `json:"message"`
}

// JSON sends a success response with the payload at the top level. The legacy
// client reads records and lists directly, without an envelope.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusCreated, payload)
}

// Message responds with a `{message}` confirmation body.
func Message(c *gin.Context, message string) {
	JSON(c, http.StatusOK, MessageBody{Message: message})
}

// Error sends an error response. The body always carries a `message` field,
// which the client surfaces directly.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.JSON(appErr.Status, appErr)
}
