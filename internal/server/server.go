package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pradiptya/memberkit/config"
	"github.com/pradiptya/memberkit/internal/handlers"
	"github.com/pradiptya/memberkit/internal/middleware"
	"github.com/pradiptya/memberkit/internal/models"
	"github.com/pradiptya/memberkit/internal/pipeline"
	"github.com/pradiptya/memberkit/internal/reconcile"
	"github.com/pradiptya/memberkit/internal/repository"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	startExpirySweeper(db)

	r := gin.Default()

	setupRoutes(r, db)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func startExpirySweeper(db *gorm.DB) {
	log := slog.Default()
	store := repository.New(db)
	notifier := pipeline.NewLogNotifier(log)
	activator := pipeline.NewActivator(store, notifier, log)
	ledger := pipeline.NewLedger(store, notifier, log)
	auditor := reconcile.NewAuditor(store, activator, ledger, log)

	sweeper := reconcile.NewSweeper(auditor, reconcile.DefaultSweepInterval)
	go sweeper.Start(context.Background())
}

func setupRoutes(r *gin.Engine, db *gorm.DB) {
	r.Use(middleware.DatabaseMiddleware(db))

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)
		public.GET("/r/:code", handlers.TrackClick)

		public.GET("/memberships", handlers.ListMemberships)
		public.GET("/memberships/:id", handlers.GetMembership)

		webhooks := public.Group("/webhooks")
		webhooks.Use(middleware.CallbackTokenMiddleware())
		{
			webhooks.POST("/payment", handlers.PaymentWebhook)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.POST("/checkout", handlers.CreateCheckout)
		protected.GET("/users/me/memberships", handlers.ListMyMemberships)
		protected.GET("/users/me/wallet", handlers.GetMyWallet)

		affiliates := protected.Group("/affiliates")
		{
			affiliates.POST("", handlers.RegisterAffiliate)
			affiliates.GET("/me", handlers.GetMyAffiliate)
		}

		protected.GET("/memberships/:id/card", handlers.GenerateMemberCard)
		protected.POST("/memberships/verify",
			middleware.RequireRoles(models.RoleMentor, models.RoleAdmin),
			handlers.VerifyMemberCard)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.JWTAuthMiddleware(), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/memberships", handlers.ListMemberships)
		admin.POST("/memberships", handlers.CreateMembership)
		admin.POST("/reconcile", handlers.RunReconciliation)
	}
}
