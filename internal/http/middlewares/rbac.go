package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/domain/user"
)

// RequireRoles gates a route on the caller's role. Must run after
// RequireAuth; a request without identity context fails 401, a wrong
// role fails 403.
func (m *AuthMiddleware) RequireRoles(allowed ...user.Role) gin.HandlerFunc {
	set := make(map[user.Role]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Missing identity context",
				},
			})
			return
		}

		if _, ok := set[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Insufficient role",
				},
			})
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) RequireOwner() gin.HandlerFunc {
	return m.RequireRoles(user.RoleOwner)
}

func (m *AuthMiddleware) RequireAdminOrOwner() gin.HandlerFunc {
	return m.RequireRoles(user.RoleAdmin, user.RoleOwner)
}

func (m *AuthMiddleware) RequireMember() gin.HandlerFunc {
	return m.RequireRoles(user.RoleMember)
}
