package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventcert/internal/api/middleware"
	"eventcert/internal/verification"
)

// TokenResolver 解析证书验证令牌，由 verification.Resolver 实现。
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*verification.Result, error)
}

// VerifyHandler 提供公开的证书验证接口。
type VerifyHandler struct {
	resolver TokenResolver
}

func NewVerifyHandler(resolver TokenResolver) *VerifyHandler {
	return &VerifyHandler{resolver: resolver}
}

// Verify 校验证书二维码中的令牌。路由使用通配参数，令牌中的 '/' 不会被截断。
func (h *VerifyHandler) Verify(c *gin.Context) {
	result, err := h.resolver.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, verification.ErrInvalidToken) {
			NotFound(c, verification.ErrInvalidToken.Error())
			return
		}
		middleware.LoggerFromContext(c).Error("verify certificate failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, result)
}
