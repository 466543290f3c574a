package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	JSONErrorDetails(c, status, err, message, nil)
}

// JSONErrorDetails sends a structured error response with extra top-level fields, e.g. the
// minimum a rejected bid has to reach. The standard keys cannot be overridden.
func JSONErrorDetails(c *gin.Context, status int, err error, message string, details gin.H) {
	body := gin.H{}
	for k, v := range details {
		body[k] = v
	}
	body["status"] = status
	body["message"] = message
	body["error"] = err.Error()
	c.JSON(status, body)
}
