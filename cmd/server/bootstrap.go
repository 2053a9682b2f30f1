package main

import (
	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/internal/handlers"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/services"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	authService     *services.AuthService
	passcodeService *services.PasscodeService
	cleanupService  *services.CleanupService
	taskQueue       services.TaskQueue
	worker          *services.Worker

	authHandler     *handlers.AuthHandler
	userHandler     *handlers.UserHandler
	productHandler  *handlers.ProductHandler
	customerHandler *handlers.CustomerHandler
	saleHandler     *handlers.SaleHandler
	auditHandler    *handlers.AuditHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	services.InitAuditTrail(models.GetDB())

	// Email dispatch: asynq queue when Redis is enabled, inline otherwise
	sender := services.NewSMTPSender(&cfg.Email)
	taskQueue := services.NewTaskQueue(&cfg.Redis, sender)

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, sender)
		if err := worker.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start queue worker")
			worker = nil
		}
	}

	passcodeService := services.NewPasscodeService(models.GetDB(), &cfg.Auth, taskQueue)
	authService := services.NewAuthService(models.GetDB(), &cfg.JWT, &cfg.Auth, passcodeService)
	authHandler := handlers.NewAuthHandler(authService, passcodeService)

	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	cleanupService := services.NewCleanupService(models.GetDB(), &cfg.Auth, authService, passcodeService)
	if err := cleanupService.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start cleanup scheduler")
	}

	return &appServices{
		authService:     authService,
		passcodeService: passcodeService,
		cleanupService:  cleanupService,
		taskQueue:       taskQueue,
		worker:          worker,
		authHandler:     authHandler,
		userHandler:     handlers.NewUserHandler(models.GetDB()),
		productHandler:  handlers.NewProductHandler(models.GetDB()),
		customerHandler: handlers.NewCustomerHandler(models.GetDB()),
		saleHandler:     handlers.NewSaleHandler(models.GetDB()),
		auditHandler:    handlers.NewAuditHandler(services.NewAuditService(models.GetDB())),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.cleanupService != nil {
		s.cleanupService.Stop()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
