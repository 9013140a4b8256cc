package middleware

import (
	"net/http"

	"campus_quest_engine/pkg/auth"
	"campus_quest_engine/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

// AdminOnly gates quest-management and manual-review endpoints on the
// role claim set by the auth middleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		role, exists := c.Get(auth.ContextRole)
		if !exists {
			log.Error("role not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if role != auth.RoleAdmin {
			userID, _ := auth.UserID(c)
			log.Info("unauthorized access attempt to admin endpoint",
				zap.String("user_id", userID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Next()
	}
}
