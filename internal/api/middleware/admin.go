package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminHeaderName and AdminQueryName are the two places the shared
// secret is accepted from.
const (
	AdminHeaderName = "x-admin-key"
	AdminQueryName  = "admin_key"
)

// AdminKey guards the /api/admin routes with a shared secret. An empty
// configured key disables the routes entirely: there is no default key,
// everything is rejected until one is provisioned. Mismatches get a bare
// 403 with no detail on why.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		provided := c.GetHeader(AdminHeaderName)
		if provided == "" {
			provided = c.Query(AdminQueryName)
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
