package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trackline/backend/pkg/apperror"
)

// Body is the standard API response envelope. Error carries the full
// structured application error so the client can branch on error.code.
type Body struct {
	Success bool            `json:"success"`
	Data    interface{}     `json:"data,omitempty"`
	Error   *apperror.Error `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error classifies err and sends it with the status derived from its code.
// Unclassified errors are collapsed to INTERNAL; application errors keep
// their code and structured fields intact.
func Error(c *gin.Context, err error) {
	appErr := apperror.From(err)
	c.JSON(appErr.HTTPStatus(), Body{Success: false, Error: appErr})
}

// AbortError sends err and aborts the handler chain. For use in middleware.
func AbortError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
