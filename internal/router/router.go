// internal/router/router.go
package router

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/gateways"
	"github.com/ndakohub/ndako-backend/internal/handlers"
	"github.com/ndakohub/ndako-backend/internal/middleware"
	"github.com/ndakohub/ndako-backend/internal/models"
	"github.com/ndakohub/ndako-backend/internal/services"
	"github.com/ndakohub/ndako-backend/internal/utils"
)

// Initialize wires gateways, services and handlers and returns the engine
// together with the sweep service the caller runs in its own goroutine.
func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.SweepService, error) {
	// Gateways
	clock := gateways.NewRealClock()
	paymentGateway := gateways.NewStripeGateway(cfg)
	documentGenerator, err := gateways.NewS3DocumentGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}

	// Services
	notificationService := services.NewNotificationService(db, cfg)
	otpService := services.NewOtpService(db, cfg, clock)
	escrowService := services.NewEscrowService(db, cfg, paymentGateway, clock, notificationService)
	signatureService := services.NewSignatureService(db, cfg, otpService, escrowService, documentGenerator, clock, notificationService)
	contractService := services.NewContractService(db, cfg, escrowService, clock, notificationService)
	disputeService := services.NewDisputeService(db, cfg, escrowService, clock, notificationService)
	sweepService := services.NewSweepService(db, cfg, contractService, escrowService, signatureService, disputeService, clock)
	authService := services.NewAuthService(db, cfg)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	contractHandler := handlers.NewContractHandler(contractService, signatureService)
	escrowHandler := handlers.NewEscrowHandler(escrowService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// Contract routes
		contracts := v1.Group("/contracts")
		contracts.Use(middleware.AuthRequired())
		{
			contracts.POST("", middleware.RoleRequired(models.UserRoleLandlord), contractHandler.Generate)
			contracts.GET("", contractHandler.List)
			contracts.GET("/:id", contractHandler.Get)
			contracts.POST("/:id/send", contractHandler.SendForSignature)
			contracts.POST("/:id/cancel", contractHandler.Cancel)
			contracts.POST("/:id/withdraw", contractHandler.Withdraw)
			contracts.POST("/:id/terminate", contractHandler.Terminate)
			contracts.POST("/:id/rent/schedule", middleware.AdminRequired(), contractHandler.ScheduleNextRent)

			// Signature round
			contracts.POST("/:id/signatures/request", middleware.OtpRateLimit(), contractHandler.RequestSignature)
			contracts.POST("/:id/signatures/confirm", contractHandler.ConfirmSignature)
			contracts.GET("/:id/signatures", contractHandler.ListSignatures)

			// Escrow entries scoped to a contract
			contracts.GET("/:id/escrow", escrowHandler.ListForContract)
		}

		// Escrow routes
		escrow := v1.Group("/escrow")
		{
			// Provider callback carries its own authentication.
			escrow.POST("/webhook", webhookAuth(cfg), escrowHandler.Webhook)

			protected := escrow.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("/:id", escrowHandler.Get)
				protected.POST("/:id/authorize", middleware.RoleRequired(models.UserRoleTenant), escrowHandler.Authorize)
				protected.POST("/:id/capture", middleware.RoleRequired(models.UserRoleTenant), escrowHandler.Capture)
				protected.POST("/:id/confirm-receipt", middleware.RoleRequired(models.UserRoleLandlord), escrowHandler.ConfirmReceipt)
				protected.POST("/:id/refund", middleware.AdminRequired(), escrowHandler.Refund)
			}
		}

		// Dispute routes
		disputes := v1.Group("/disputes")
		disputes.Use(middleware.AuthRequired())
		{
			disputes.POST("", disputeHandler.Open)
			disputes.GET("/:id", disputeHandler.Get)
			disputes.POST("/:id/assign", middleware.AdminRequired(), disputeHandler.AssignMediator)
			disputes.POST("/:id/resolve", middleware.MediatorRequired(), disputeHandler.Resolve)
			disputes.POST("/:id/withdraw", disputeHandler.Withdraw)
		}
	}

	return r, sweepService, nil
}

// webhookAuth checks the shared secret on provider callbacks. An empty
// configured secret (local development) lets everything through.
func webhookAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := cfg.Payment.WebhookSecret
		if secret == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}
		c.Next()
	}
}
