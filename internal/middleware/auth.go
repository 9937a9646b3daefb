package middleware

import (
	"github.com/gin-gonic/gin"

	"drivingschool-api/internal/access"
	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/model"
)

const (
	AdminTokenHeader = "admin-token"

	principalKey = "access.principal"
)

func PrincipalFrom(c *gin.Context) model.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(model.Principal); ok {
			return p
		}
	}
	return model.Principal{}
}

// RequireStudent admits callers with a valid session token. The admin header
// is not consulted.
func RequireStudent(r *access.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := r.Student(c.GetHeader("Authorization"))
		if err != nil {
			RespondError(c, err)
			return
		}
		if p.Role != model.RoleStudent {
			RespondError(c, apperrors.New(apperrors.ErrAuthentication, "Not authenticated"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireAdmin admits callers presenting the admin secret. A server without
// ADMIN_TOKEN answers 500 before the header is looked at.
func RequireAdmin(r *access.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := r.Admin(c.GetHeader(AdminTokenHeader))
		if err != nil {
			RespondError(c, err)
			return
		}
		if p.Role != model.RoleAdmin {
			RespondError(c, apperrors.New(apperrors.ErrAuthorization, "Admin token missing"))
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}
