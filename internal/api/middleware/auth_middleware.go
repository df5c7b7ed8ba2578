package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eventcert/internal/auth"
)

const organizerIDKey = "organizerID"

// TokenValidator 校验访问令牌，由 auth.Service 实现。
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验 Bearer 访问令牌并将 organizerID 注入上下文。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil || claims.OrganizerID == 0 {
			abortUnauthorized(c)
			return
		}

		c.Set(organizerIDKey, claims.OrganizerID)
		c.Next()
	}
}

// OrganizerID 返回已认证的组织者 id。
func OrganizerID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(organizerIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}
