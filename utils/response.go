package utils

import (
	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key the request logger stores the request id under
const RequestIDKey = "request_id"

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response. The request id is echoed so
// failures can be matched with server logs.
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, errorBody(c, status, err, message))
}

// JSONAbort sends a structured error response and stops the handler chain
func JSONAbort(c *gin.Context, status int, err error, message string) {
	c.AbortWithStatusJSON(status, errorBody(c, status, err, message))
}

func errorBody(c *gin.Context, status int, err error, message string) gin.H {
	body := gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	}
	if id := c.GetString(RequestIDKey); id != "" {
		body["request_id"] = id
	}
	return body
}
