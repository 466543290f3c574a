package server

import (
	"time"

	"bidding-live/services/bidding/helpers"
	"bidding-live/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if id, ok := helpers.IdentityFrom(c); ok {
		fields["user_id"] = id.UserID
	}
	utils.Info("HTTP Request", fields)
}

// RequireAuth resolves the bearer token and stores the caller on the context.
// Requests without a valid token stop here with 401.
func RequireAuth(tokens helpers.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := tokens.ParseToken(helpers.BearerToken(c))
		if err != nil {
			helpers.RespondError(c, "RequireAuth", err, map[string]any{"path": c.Request.URL.Path})
			c.Abort()
			return
		}
		helpers.SetIdentity(c, id)
		c.Next()
	}
}
