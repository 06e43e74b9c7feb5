package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/farellandr/storefront/config"
	"github.com/farellandr/storefront/internal/handlers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/notifier"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func Start(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	svc, err := services.New(services.Deps{
		DB:       db,
		Logger:   logger,
		Notifier: notifier.NewLog(logger),
		Policy:   cfg.Policy.Services(),
	})
	if err != nil {
		return fmt.Errorf("failed to build services: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(svc, logger, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func NewRouter(svc *services.Services, logger *zap.Logger, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))
	setupRoutes(r, svc, logger, jwtSecret)
	return r
}

func setupRoutes(r *gin.Engine, svc *services.Services, logger *zap.Logger, jwtSecret string) {
	r.Use(middleware.ServicesMiddleware(svc, logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := r.Group("/v1")
	public.Use(middleware.OptionalAuthMiddleware(jwtSecret))
	{
		categoryPublic := public.Group("/categories")
		{
			categoryPublic.GET("", handlers.ListCategories)
			categoryPublic.GET("/:id", handlers.GetCategory)
			categoryPublic.GET("/:id/path", handlers.GetCategoryPath)
			categoryPublic.GET("/:id/children", handlers.ListCategoryChildren)
		}

		public.GET("/products/:id/stock", handlers.GetProductStock)

		wishlistPublic := public.Group("/wishlists")
		{
			wishlistPublic.POST("", handlers.CreateWishlist)
			wishlistPublic.GET("/:id", handlers.GetWishlist)
			wishlistPublic.POST("/:id/items", handlers.AddWishlistItem)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware(jwtSecret))
	{
		userScoped := protected.Group("/users/:user_id")
		{
			userScoped.POST("/cart", handlers.GetOrCreateCart)
			userScoped.POST("/wishlist", handlers.GetOrCreateWishlist)
		}

		cartProtected := protected.Group("/carts")
		{
			cartProtected.GET("/:id", handlers.GetCart)
			cartProtected.POST("/:id/items", handlers.AddCartItem)
		}
		protected.PUT("/cart-items/:id", handlers.UpdateCartItem)
		protected.DELETE("/cart-items/:id", handlers.RemoveCartItem)

		wishlistProtected := protected.Group("/wishlists")
		{
			wishlistProtected.PUT("/:id/visibility", handlers.SetWishlistVisibility)
			wishlistProtected.POST("/:id/move-to-cart", handlers.MoveWishlistToCart)
		}
		wishlistItems := protected.Group("/wishlist-items")
		{
			wishlistItems.PUT("/priorities", handlers.BulkUpdateWishlistPriorities)
			wishlistItems.PUT("/:id/priority", handlers.UpdateWishlistItemPriority)
			wishlistItems.DELETE("/:id", handlers.RemoveWishlistItem)
			wishlistItems.POST("/:id/move-to-cart", handlers.MoveWishlistItemToCart)
		}

		orderProtected := protected.Group("/orders")
		{
			orderProtected.POST("", handlers.CreateOrder)
			orderProtected.GET("", handlers.ListOrders)
			orderProtected.GET("/:id", handlers.GetOrder)
			orderProtected.GET("/:id/history", handlers.GetOrderHistory)
			orderProtected.GET("/:id/payments", handlers.ListOrderPayments)
			orderProtected.POST("/:id/commit", handlers.CommitOrder)
			orderProtected.POST("/:id/cancel", handlers.CancelOrder)
		}

		paymentProtected := protected.Group("/payments")
		{
			paymentProtected.POST("", handlers.CreatePayment)
			paymentProtected.GET("/:id", handlers.GetPayment)
			paymentProtected.POST("/:id/cancel", handlers.CancelPayment)
			paymentProtected.POST("/:id/refunds", handlers.RequestRefund)
		}

		refundProtected := protected.Group("/refunds")
		{
			refundProtected.GET("/:id", handlers.GetRefund)
			refundProtected.POST("/:id/cancel", handlers.CancelRefund)
		}
	}

	staff := r.Group("/v1")
	staff.Use(middleware.JWTAuthMiddleware(jwtSecret), middleware.RequireStaff())
	{
		categoryStaff := staff.Group("/categories")
		{
			categoryStaff.POST("", handlers.CreateCategory)
			categoryStaff.PUT("/:id", handlers.UpdateCategory)
			categoryStaff.PUT("/:id/parent", handlers.ReparentCategory)
			categoryStaff.DELETE("/:id", handlers.DeleteCategory)
			categoryStaff.POST("/:id/restore", handlers.RestoreCategory)
		}

		bulk := staff.Group("/bulk/categories")
		{
			bulk.POST("", handlers.BulkCreateCategories)
			bulk.PUT("", handlers.BulkUpdateCategories)
			bulk.POST("/delete", handlers.BulkDeleteCategories)
		}

		staff.POST("/products/:id/restock", handlers.RestockProduct)
		staff.POST("/orders/:id/transition", handlers.TransitionOrder)

		paymentStaff := staff.Group("/payments")
		{
			paymentStaff.POST("/:id/complete", handlers.CompletePayment)
			paymentStaff.POST("/:id/fail", handlers.FailPayment)
		}

		refundStaff := staff.Group("/refunds")
		{
			refundStaff.POST("/:id/approve", handlers.ApproveRefund)
			refundStaff.POST("/:id/complete", handlers.CompleteRefund)
			refundStaff.POST("/:id/reject", handlers.RejectRefund)
		}

		reports := staff.Group("/admin/payments")
		{
			reports.GET("/duplicates", handlers.FindDuplicatePayments)
			reports.GET("/stale", handlers.ListStalePayments)
			reports.POST("/stale/expire", handlers.ExpireStalePayments)
			reports.GET("/summary", handlers.GetPaymentSummary)
		}
	}
}
