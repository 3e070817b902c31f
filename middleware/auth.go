package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Luisfeliz3/sporty-urban-ecommerce/common/auth"
	apperrors "github.com/Luisfeliz3/sporty-urban-ecommerce/common/errors"
)

const PrincipalContextKey = auth.ContextKey

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// AuthMiddleware resolves the caller from a Bearer access token. When
// trustGateway is set, identity headers injected by the API gateway are
// accepted for requests that carry no token.
func AuthMiddleware(verifier *auth.Verifier, trustGateway bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && trustGateway {
			if id := strings.TrimSpace(c.GetHeader(headerUserID)); id != "" {
				c.Set(PrincipalContextKey, auth.Principal{
					AccountID: id,
					IsAdmin:   c.GetHeader(headerUserRole) == auth.RoleAdmin,
				})
				c.Next()
				return
			}
		}

		if header == "" {
			apperrors.Render(c, apperrors.Unauthorized("Not authorized, no token"))
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			apperrors.Render(c, apperrors.Unauthorized("Invalid token format"))
			return
		}

		claims, err := verifier.ParseAndValidateToken(strings.TrimSpace(header[7:]), "access")
		if err != nil {
			logger.Debug("Rejected access token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			apperrors.Render(c, apperrors.Unauthorized("Not authorized, token failed"))
			return
		}
		principal, err := auth.PrincipalFromClaims(claims)
		if err != nil {
			apperrors.Render(c, apperrors.Unauthorized("Not authorized, token failed"))
			return
		}

		c.Set(PrincipalContextKey, principal)
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			apperrors.Render(c, apperrors.Unauthorized("Not authorized"))
			return
		}
		if !p.IsAdmin {
			apperrors.Render(c, apperrors.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	if val, ok := c.Get(PrincipalContextKey); ok {
		if p, ok := val.(auth.Principal); ok && p.AccountID != "" {
			return p, true
		}
	}
	return auth.Principal{}, false
}
