package mw

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OperatorAuth gates privileged endpoints behind a shared bearer token. A
// blank token disables the check entirely.
func OperatorAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
