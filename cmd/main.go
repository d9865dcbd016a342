package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payment-routing-service/internal/config"
	"payment-routing-service/internal/events"
	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/handlers"
	"payment-routing-service/internal/metrics"
	"payment-routing-service/internal/middleware"
	"payment-routing-service/internal/models"
	"payment-routing-service/internal/repository"
	"payment-routing-service/internal/services"
	"payment-routing-service/internal/subscribers"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	cfg := config.Load()

	// Connect to database
	db, err := connectDatabase(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := db.AutoMigrate(&models.PaymentTransaction{}); err != nil {
		logger.WithError(err).Warn("Auto-migration failed")
	}
	logger.Info("✓ Connected to database")

	// Routing configuration: defaults < routing.<env>.yaml < environment
	store := config.NewYAMLStore(cfg.ConfigDir, cfg.Environment)
	manager := config.NewManager(store, config.OSEnv, logger)
	logger.WithFields(logrus.Fields{
		"file":    store.Path(),
		"enabled": len(manager.EnabledProviders()),
	}).Info("✓ Routing configuration loaded")

	// Provider health signals
	healthRepo, err := repository.NewHealthRepository(cfg.RedisURL, cfg.HealthKey, cfg.HealthMaxAge)
	if err != nil {
		logger.WithError(err).Fatal("Invalid Redis configuration")
	}
	defer healthRepo.Close()
	if healthRepo.IsAvailable() {
		logger.Info("✓ Provider health store connected")
	} else {
		logger.Warn("Redis unavailable, routing with neutral health scores")
	}

	promMetrics := metrics.New()
	fees := gateway.DefaultFeeModel()
	txRepo := repository.NewTransactionRepository(db)
	executors := gateway.NewExecutorFactory()

	volumeTracker := services.NewVolumeTracker(txRepo, manager, fees, logger)
	routingService := services.NewRoutingService(manager, fees, volumeTracker, healthRepo, services.RoutingServiceConfig{
		SignalTimeout:   cfg.HistoryTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	}, logger).WithMetrics(promMetrics)
	chargeService := services.NewChargeService(routingService, manager, executors, txRepo, logger).WithMetrics(promMetrics)

	// NATS events publisher
	eventsPublisher, err := events.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize events publisher (events won't be published)")
	} else {
		defer eventsPublisher.Close()
		volumeTracker.WithPublisher(&countingAlertPublisher{next: eventsPublisher, metrics: promMetrics})
		routingService.WithPublisher(eventsPublisher)
		logger.Info("✓ NATS events publisher initialized")
	}

	// Provider health subscriber
	if healthRepo.IsAvailable() {
		healthSubscriber, err := subscribers.NewHealthSubscriber(cfg.NATSURL, healthRepo, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize health subscriber (health updates won't be received)")
		} else if err := healthSubscriber.Start(); err != nil {
			logger.WithError(err).Warn("Health subscriber failed to start")
		} else {
			defer healthSubscriber.Close()
			logger.Info("✓ Provider health subscriber started")
		}
	}

	rbacMiddleware := rbac.NewMiddlewareWithURL(cfg.StaffServiceURL, nil)
	rateLimiter := middleware.NewRateLimiter(manager)
	defer rateLimiter.Stop()

	routingHandler := handlers.NewRoutingHandler(routingService, volumeTracker, chargeService)
	configHandler := handlers.NewConfigHandler(manager, routingService, executors)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(routingHandler, configHandler, manager, rateLimiter, rbacMiddleware, promMetrics, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
		}).Info("Payment routing service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down payment routing service")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}

// connectDatabase establishes a connection to the database
func connectDatabase(databaseURL, environment string) (*gorm.DB, error) {
	logLevel := gormlogger.Info
	if environment == "production" {
		logLevel = gormlogger.Silent
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// countingAlertPublisher counts alerts before publishing them
type countingAlertPublisher struct {
	next    services.AlertPublisher
	metrics *metrics.Metrics
}

func (p *countingAlertPublisher) PublishVolumeAlert(ctx context.Context, alert models.VolumeAlert) error {
	p.metrics.VolumeAlerts.WithLabelValues(string(alert.Kind)).Inc()
	return p.next.PublishVolumeAlert(ctx, alert)
}

// setupRouter configures the HTTP router
func setupRouter(
	routingHandler *handlers.RoutingHandler,
	configHandler *handlers.ConfigHandler,
	manager *config.Manager,
	rateLimiter *middleware.RateLimiter,
	rbacMw *rbac.Middleware,
	promMetrics *metrics.Metrics,
	logger *logrus.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(promMetrics.HTTPMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(manager))
	router.Use(middleware.RequestContext())

	// Health check and metrics (no rate limiting)
	router.GET("/health", func(c *gin.Context) {
		result := manager.Validate()
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"service":          "payment-routing-service",
			"enabledProviders": len(manager.EnabledProviders()),
			"configValid":      result.Valid,
		})
	})
	router.GET("/metrics", gin.WrapH(promMetrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireJSON())
	v1.Use(middleware.RateLimitMiddleware(rateLimiter))
	{
		// Called by the checkout flow before a charge
		routing := v1.Group("/routing")
		routing.Use(middleware.RequireMerchantID())
		{
			routing.POST("/select", routingHandler.SelectProvider)
			routing.POST("/charge", routingHandler.Charge)

			merchants := routing.Group("/merchants/:merchantId")
			merchants.Use(rbacMw.RequirePermission(rbac.PermissionPaymentsRead))
			{
				merchants.GET("/volume", routingHandler.GetVolume)
				merchants.GET("/alerts", routingHandler.GetAlerts)
				merchants.GET("/forecast", routingHandler.GetForecast)
			}
		}

		admin := v1.Group("/routing-admin")
		admin.Use(middleware.AuditMiddleware(logger))
		{
			// Read operations - require payments:gateway:read permission
			admin.GET("/providers", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.ListProviders)
			admin.GET("/providers/:name", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.GetProvider)
			admin.GET("/routing", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.GetRouting)
			admin.GET("/features", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.GetFeatures)
			admin.GET("/security", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.GetSecurity)
			admin.POST("/validate", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.Validate)
			admin.POST("/simulate", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayRead), configHandler.Simulate)

			// Management operations - require payments:gateway:manage permission
			admin.PUT("/providers/:name", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayManage), configHandler.UpdateProvider)
			admin.PUT("/routing", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayManage), configHandler.UpdateRouting)
			admin.PUT("/features/:name", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayManage), configHandler.UpdateFeature)
			admin.POST("/backup", rbacMw.RequirePermission(rbac.PermissionPaymentsGatewayManage), configHandler.Backup)
		}
	}

	return router
}
