package identity

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

// GinMiddleware resolves the caller identity set by the auth collaborator
// upstream (gateway-verified headers) and stores it on the request context.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(headerUserID))
		if rawID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"type":    "unauthorized",
				"message": "missing identity",
			}})
			return
		}
		userID, err := snowflake.ParseString(rawID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"type":    "unauthorized",
				"message": "invalid identity",
			}})
			return
		}

		role := Role(strings.ToLower(strings.TrimSpace(c.GetHeader(headerRole))))
		switch role {
		case RoleStudent, RoleMentor, RoleAdmin:
		default:
			role = RoleStudent
		}

		ctx := WithActor(c.Request.Context(), Actor{UserID: userID, Role: role})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin gates operator and resolution endpoints.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c.Request.Context())
		if !ok || !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{
				"type":    "forbidden",
				"message": "admin role required",
			}})
			return
		}
		c.Next()
	}
}
