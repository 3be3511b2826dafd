package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campusdesk/student-admin-api/internal/models"
	appErrors "github.com/campusdesk/student-admin-api/pkg/errors"
	"github.com/campusdesk/student-admin-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes. It must run
// after JWT so the authenticated user is already in the context.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		user, ok := value.(*models.User)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[user.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
