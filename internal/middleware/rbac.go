package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/wellcheck-backend/internal/response"
)

// RequirePermission checks that the admin JWT contains the required permission code.
func RequirePermission(permissionCode string) gin.HandlerFunc {
	return RequireAnyPermission(permissionCode)
}

// RequireAnyPermission checks that the admin JWT contains at least one of the specified permissions.
func RequireAnyPermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, p := range claims.Permissions {
			for _, code := range codes {
				if p == code {
					c.Next()
					return
				}
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
	}
}

// SchoolScope returns the school an admin is restricted to, or 0 for a
// platform admin.
func SchoolScope(c *gin.Context) int {
	claims := GetClaims(c)
	if claims == nil {
		return 0
	}
	return claims.SchoolID
}
