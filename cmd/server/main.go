// @title          Receipt Fusion API
// @version        1.0.0
// @description    API server for streaming receipt recognition - scan sessions, frame fusion, and stored receipts

// @contact.name  Receipt Fusion Support
// @contact.email support@receiptfusion.app

// @license.name Apache 2.0
// @license.url  http://www.apache.org/licenses/LICENSE-2.0.html

// @host     localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Firebase Bearer token. Format: "Bearer {token}"

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/receiptfusion/backend/internal/cache"
	"github.com/receiptfusion/backend/internal/config"
	"github.com/receiptfusion/backend/internal/database"
	"github.com/receiptfusion/backend/internal/handlers"
	"github.com/receiptfusion/backend/internal/middleware"
	"github.com/receiptfusion/backend/internal/repository"
	"github.com/receiptfusion/backend/internal/services"
	"github.com/receiptfusion/backend/pkg/visionapi"
	"go.uber.org/zap"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize database connections
	mongoDB := database.NewMongoDB(&cfg.MongoDB)
	defer mongoDB.Disconnect()

	redisClient := database.NewRedisClient(&cfg.Redis)
	defer redisClient.Close()

	// Create MongoDB indexes for performance
	database.EnsureIndexes(mongoDB)

	// Initialize Vision API client
	visionClient, err := visionapi.NewClient(
		logger,
		cfg.Google.VisionCredentials,
		cfg.Google.VisionAPIKey,
	)
	if err != nil {
		logger.Warn("Vision API client initialization failed", zap.Error(err))
	}
	if visionClient != nil {
		defer visionClient.Close()
	}

	// Initialize repositories and services
	receiptRepo := repository.NewReceiptRepository(mongoDB)
	cacheService := cache.NewCacheService(redisClient.Client)
	scanService := services.NewScanService(receiptRepo, cacheService, visionClient, cfg.Recognition, logger)
	defer scanService.Close()

	// Initialize handlers
	scanHandler := handlers.NewScanHandler(scanService)
	receiptHandler := handlers.NewReceiptHandler(receiptRepo)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.CredentialsFile)

	// Setup Gin router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(middleware.RecoveryWithLogger(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimitMiddleware(100)) // 100 requests/second per IP

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "receipt-fusion-api",
			"version": "1.0.0",
		})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Scan session routes - frame submission is the hot path, keep a
	// per-user rate limit on it
	scans := v1.Group("/scans")
	scans.Use(authMiddleware.Authenticate())
	scans.Use(middleware.RateLimitByUser(600)) // 10 frames/second per user
	{
		scans.POST("", scanHandler.CreateScan)
		scans.POST("/:id/frames", scanHandler.SubmitFrame)
		scans.GET("/:id", scanHandler.GetScan)
		scans.POST("/:id/confirm", scanHandler.ConfirmScan)
		scans.DELETE("/:id", scanHandler.AbortScan)
	}

	// Stored receipt routes
	receipts := v1.Group("/receipts")
	receipts.Use(authMiddleware.Authenticate())
	{
		receipts.GET("", receiptHandler.ListReceipts)
		receipts.GET("/:id", receiptHandler.GetReceipt)
	}

	// Create HTTP server with proper timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Receipt Fusion API server starting on %s", cfg.Server.Port)
		log.Printf("📚 Swagger UI: http://localhost%s/swagger/index.html", cfg.Server.Port)
		log.Printf("📷 Scan endpoint: POST /api/v1/scans")
		log.Printf("🧾 Receipts endpoint: GET /api/v1/receipts")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down server gracefully...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited gracefully")
}
