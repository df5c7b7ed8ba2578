package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"eventcert/internal/api/middleware"
	"eventcert/internal/certificate"
	"eventcert/internal/config"
	"eventcert/internal/scan"
)

// Services 汇总路由需要的全部协作方，由 cmd/api 组装。
type Services struct {
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Events        EventStore
	Registrations RegistrationFetcher
	Templates     TemplateStore
	Signer        URLSigner
	Scanner       scan.Scanner
	Tokens        TokenService
	OTP           OTPService
	Verifier      TokenResolver
	Batches       BatchSender
	Stager        BatchStager
	Enqueuer      TaskEnqueuer
	Document      certificate.Renderer
	Preview       certificate.Renderer
	Logger        *slog.Logger
}

// TokenService 同时签发与校验访问令牌，由 auth.Service 实现。
type TokenService interface {
	TokenIssuer
	middleware.TokenValidator
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, cfg *config.Config, s Services) {
	authHandler := NewAuthHandler(s.DB, s.OTP, s.Tokens)
	eventHandler := NewEventHandler(s.Events, s.Registrations, s.Scanner, cfg.API.MaxUploadSize)
	layoutHandler := NewLayoutHandler(LayoutDeps{
		Events:        s.Events,
		Templates:     s.Templates,
		Preview:       s.Preview,
		Document:      s.Document,
		Scanner:       s.Scanner,
		VerifyBaseURL: cfg.Certificate.VerifyBaseURL,
		DateFormat:    cfg.Certificate.DateFormat,
		Logger:        s.Logger,
	})
	templateHandler := NewTemplateHandler(s.Events, s.Templates, s.Signer, s.Scanner, cfg.API.MaxUploadSize, cfg.MinIO.PresignTTL)
	emailHandler := NewEmailHandler(EmailDeps{
		Events:      s.Events,
		Sender:      s.Batches,
		Stager:      s.Stager,
		Enqueuer:    s.Enqueuer,
		Scanner:     s.Scanner,
		MaxUpload:   cfg.API.MaxUploadSize,
		SendTimeout: cfg.API.SendTimeout,
		DefaultMode: cfg.Certificate.DeliveryMode,
	})
	verifyHandler := NewVerifyHandler(s.Verifier)
	wsHandler := NewWsHandler(s.Redis, s.Tokens, s.Logger, cfg.API.AllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(s.Tokens)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.GET("/verify/*token", verifyHandler.Verify)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/otp", authHandler.RequestOTP)
			authGroup.POST("/otp/verify", authHandler.VerifyOTP)
			authGroup.GET("/me", authMiddleware, authHandler.Me)
		}

		// 公开接口：报名页与实时看板。
		v1.GET("/events/:id", eventHandler.GetEvent)
		v1.GET("/events/:id/pulse", eventHandler.Pulse)

		eventGroup := v1.Group("/events")
		eventGroup.Use(authMiddleware)
		{
			eventGroup.POST("", eventHandler.CreateEvent)
			eventGroup.GET("", eventHandler.ListEvents)
			eventGroup.PUT("/:id", eventHandler.UpdateEvent)
			eventGroup.GET("/:id/registrations", eventHandler.ListRegistrations)
			eventGroup.PUT("/:id/registrations", eventHandler.UploadRegistrations)
			eventGroup.POST("/:id/registrations/sync", eventHandler.SyncRegistrations)

			eventGroup.PUT("/:id/layout", layoutHandler.SaveLayout)
			eventGroup.POST("/:id/layout/edits", layoutHandler.ApplyEdits)
			eventGroup.GET("/:id/layout/preview", layoutHandler.Preview)
			eventGroup.GET("/:id/certificate/sample", layoutHandler.SampleCertificate)

			eventGroup.PUT("/:id/template", templateHandler.UploadTemplate)
			eventGroup.GET("/:id/template", templateHandler.GetTemplate)

			eventGroup.POST("/:id/email", emailHandler.SendEmails)
		}
	}
}
