package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext unwraps the inbound request context. Handlers invoked
// outside an HTTP request (direct calls in tests) get a background context.
func requestContext(c *gin.Context) context.Context {
	if c != nil && c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}
