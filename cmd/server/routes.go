package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/middleware"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for credential endpoints
	authLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "backoffice"})
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited per IP)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/send-code", svc.authHandler.SendCode)
			auth.POST("/reset-password", svc.authHandler.ResetPassword)
			auth.POST("/oauth/exchange", svc.authHandler.ExchangeAssertion)
			auth.POST("/logout", svc.authHandler.Logout)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout-all", svc.authHandler.LogoutAll)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)
			protected.GET("/auth/sessions", svc.authHandler.ListSessions)
			protected.DELETE("/auth/sessions/:id", svc.authHandler.RevokeSession)

			// Catalog (read for all roles)
			protected.GET("/products", svc.productHandler.List)
			protected.GET("/products/:id", svc.productHandler.GetByID)
			protected.GET("/customers", svc.customerHandler.List)
			protected.GET("/customers/:id", svc.customerHandler.GetByID)
			protected.GET("/sales", svc.saleHandler.List)
			protected.GET("/sales/:id", svc.saleHandler.GetByID)

			// Sales (sales role or admin)
			sales := protected.Group("", middleware.RoleRequired(models.RoleSales))
			sales.Use(middleware.AuditWrites())
			{
				sales.POST("/sales", svc.saleHandler.Create)
				sales.POST("/sales/:id/void", svc.saleHandler.Void)
				sales.POST("/customers", svc.customerHandler.Create)
				sales.PUT("/customers/:id", svc.customerHandler.Update)
			}

			// Inventory (inventory role or admin)
			inventory := protected.Group("", middleware.RoleRequired(models.RoleInventory))
			inventory.Use(middleware.AuditWrites())
			{
				inventory.POST("/products", svc.productHandler.Create)
				inventory.PUT("/products/:id", svc.productHandler.Update)
				inventory.POST("/products/:id/stock", svc.productHandler.AdjustStock)
			}
		}

		// Admin only routes
		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditWrites())
		{
			admin.GET("/users", svc.userHandler.List)
			admin.POST("/users", svc.userHandler.Create)
			admin.PUT("/users/:id", svc.userHandler.Update)
			admin.DELETE("/users/:id", svc.userHandler.Delete)

			admin.DELETE("/customers/:id", svc.customerHandler.Delete)
			admin.DELETE("/products/:id", svc.productHandler.Delete)

			admin.GET("/audit", svc.auditHandler.List)
		}
	}
}
