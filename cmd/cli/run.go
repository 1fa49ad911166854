package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rulify/internal/config"
	"rulify/internal/handlers"
	"rulify/internal/middleware"
	"rulify/internal/models"
	"rulify/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rulify automation engine",
	Long:  `Run the rulify automation engine`,
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	log := logrus.StandardLogger()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		cfg.Database.Port, cfg.Database.SSLMode, cfg.Database.Timezone)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.Rule{}, &models.Execution{}, &models.Assignment{}, &models.WorkflowRun{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ruleStore := services.NewGormRuleStore(db)
	executionStore := services.NewGormExecutionStore(db)
	runner := services.NewActionRunner(
		services.NewLogNotificationSender(log),
		services.NewLogEmailSender(log),
		services.NewGormDataStore(db),
		services.NewLocalFileStore(cfg.Engine.FileStoreRoot),
		services.NewGormWorkflowStore(db),
		services.NewGormAssignmentStore(db),
		log,
	)
	engine := services.NewExecutionService(ruleStore, executionStore, runner, services.NewRateLimiter(executionStore), log)
	scheduler := services.NewScheduler(log)
	registry := services.NewTriggerRegistry(engine, scheduler, log)
	ruleService := services.NewRuleService(ruleStore, executionStore, registry, log)
	metricsService := services.NewMetricsService(ruleStore, executionStore, log)

	if err := ruleService.SetupScheduledTriggers(context.Background()); err != nil {
		log.Fatalf("Failed to setup scheduled triggers: %v", err)
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	metricsHandler := handlers.NewMetricsHandler(metricsService, scheduler)
	if cfg.Monitoring.Enabled {
		r.GET(cfg.Monitoring.MetricsPath, metricsHandler.GetEngineMetrics)
	}

	public := r.Group("/public")
	handlers.RegisterWebhookRoutes(public, handlers.NewWebhookHandler(registry))

	api := r.Group("/api")
	api.Use(middleware.TenantMiddleware(cfg))
	handlers.RegisterRuleRoutes(api, handlers.NewRuleHandler(ruleService, engine))
	handlers.RegisterExecutionRoutes(api, handlers.NewExecutionHandler(executionStore, registry, engine))
	handlers.RegisterMetricsRoutes(api, metricsHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		log.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	scheduler.Stop()
}
