package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes the coordination client branches on.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInternalError      = "INTERNAL_ERROR"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope every auth API endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// Success responses
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Success: true,
		Data:    data,
	})
}

// Error responses
func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, &Response{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, CodeInvalidRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func InvalidCredentials(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, CodeInvalidCredentials, message)
}

func TooManyRequests(c *gin.Context, message string) {
	Fail(c, http.StatusTooManyRequests, CodeRateLimited, message)
}

func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, CodeInternalError, message)
}
