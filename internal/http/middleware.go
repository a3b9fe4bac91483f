package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/security"
)

// adminActorKey is the gin context key carrying the authenticated actor.
const adminActorKey = "adminActor"

// AdminAuthMiddleware guards admin routes with a bearer JWT.
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secret) == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin API disabled: no secret configured"})
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims, errParse := security.ParseAdminToken(secret, tokenString)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errParse.Error()})
			return
		}

		c.Set(adminActorKey, claims.Actor)
		c.Next()
	}
}

// actorFromContext returns the authenticated admin actor, if any.
func actorFromContext(c *gin.Context) string {
	if v, exists := c.Get(adminActorKey); exists {
		if actor, ok := v.(string); ok {
			return actor
		}
	}
	return ""
}
