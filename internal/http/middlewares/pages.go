package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kavinduw/donorhub/internal/domain/user"
)

// PageGuard gates browser page prefixes (/owner, /admin, /member).
// Unlike the API guards it navigates instead of failing: no session
// redirects to the login page, a wrong role redirects home.
func (m *AuthMiddleware) PageGuard(allowed ...user.Role) gin.HandlerFunc {
	set := make(map[user.Role]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(c *gin.Context) {
		raw, err := c.Cookie(AccessTokenCookie)

		if err != nil || raw == "" {
			raw = bearerToken(c)
		}

		if raw == "" {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		role, err := claims.ParsedRole()
		if err != nil {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		if _, ok := set[role]; !ok {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}

		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxEmailKey, claims.Email)
		c.Set(ctxRoleKey, role)

		c.Next()
	}
}
