package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxRequestSize bounds tracking payloads. Events are a handful
// of short strings; anything bigger is abuse.
const DefaultMaxRequestSize = 64 * 1024 // 64KB

// RequestSizeLimit caps request body size using http.MaxBytesReader,
// which returns 413 and closes the connection when exceeded.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
