package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origin enforces the allow-list at connection establishment. Requests
// carrying an Origin header outside the list are rejected before the
// websocket upgrade; requests without one (non-browser clients) pass.
func Origin(allowed []string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if _, ok := set[strings.ToLower(origin)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}
