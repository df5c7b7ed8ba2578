package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"eventcert/internal/api/middleware"
	"eventcert/internal/database"
	"eventcert/internal/otp"
)

// OTPService 签发与校验验证码，由 otp.Store 实现。
type OTPService interface {
	Issue(ctx context.Context, mobile string) error
	Verify(ctx context.Context, mobile, code string) error
}

// TokenIssuer 签发访问令牌，由 auth.Service 实现。
type TokenIssuer interface {
	IssueAccessToken(organizerID uint) (string, error)
	AccessTokenTTL() time.Duration
}

// AuthHandler 处理组织者的手机号验证码登录。
type AuthHandler struct {
	db     *gorm.DB
	otp    OTPService
	tokens TokenIssuer
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, otpService OTPService, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{db: db, otp: otpService, tokens: tokens}
}

type otpRequest struct {
	Mobile string `json:"mobile" binding:"required,min=6,max=20"`
}

// RequestOTP 向手机号发送一次性验证码。
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	mobile := strings.TrimSpace(req.Mobile)
	logger := middleware.LoggerFromContext(c).With(slog.String("mobile", mobile))

	if err := h.otp.Issue(c.Request.Context(), mobile); err != nil {
		if errors.Is(err, otp.ErrRateLimited) {
			TooManyRequests(c, "too many code requests, try again later")
			return
		}
		logger.Error("issue otp failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "code sent"})
}

type otpVerifyRequest struct {
	Mobile string `json:"mobile" binding:"required,min=6,max=20"`
	Code   string `json:"code" binding:"required,numeric"`
	Name   string `json:"name" binding:"max=255"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	OrganizerID uint   `json:"organizer_id"`
}

// VerifyOTP 校验验证码，首次登录的手机号自动创建组织者账号。
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	mobile := strings.TrimSpace(req.Mobile)
	logger := middleware.LoggerFromContext(c).With(slog.String("mobile", mobile))

	if err := h.otp.Verify(ctx, mobile, req.Code); err != nil {
		if errors.Is(err, otp.ErrInvalidCode) {
			Unauthorized(c, "invalid or expired code")
			return
		}
		logger.Error("verify otp failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	organizer := database.Organizer{Mobile: mobile}
	if err := h.db.WithContext(ctx).
		Where(database.Organizer{Mobile: mobile}).
		Attrs(database.Organizer{Name: strings.TrimSpace(req.Name)}).
		FirstOrCreate(&organizer).Error; err != nil {
		logger.Error("load organizer failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	token, err := h.tokens.IssueAccessToken(organizer.ID)
	if err != nil {
		logger.Error("issue access token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("organizer logged in", slog.Uint64("organizer_id", uint64(organizer.ID)))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokens.AccessTokenTTL().Seconds()),
		OrganizerID: organizer.ID,
	})
}

type organizerResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile"`
}

// Me 返回当前组织者。
func (h *AuthHandler) Me(c *gin.Context) {
	organizerID, ok := middleware.OrganizerID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var organizer database.Organizer
	if err := h.db.WithContext(c.Request.Context()).First(&organizer, organizerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c, "unauthorized")
			return
		}
		middleware.LoggerFromContext(c).Error("load organizer failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	resp := organizerResponse{ID: organizer.ID, Name: organizer.Name, Mobile: organizer.Mobile}
	if organizer.Email != nil {
		resp.Email = *organizer.Email
	}
	c.JSON(http.StatusOK, resp)
}
