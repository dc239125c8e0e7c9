package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/app"
	"carbonlock/marketplace-portal/internal/config"
	"carbonlock/marketplace-portal/internal/marketplace"
	"carbonlock/marketplace-portal/internal/notifications"
	"carbonlock/marketplace-portal/internal/notifications/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		bootLogger, _ := zap.NewDevelopment()
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		logger, _ = zap.NewDevelopment()
		logger.Warn("Invalid logging configuration, using development logger", zap.Error(err))
	}
	defer logger.Sync()

	svc, err := app.NewRemote(cfg.Remote, logger)
	if err != nil {
		logger.Fatal("Failed to create contract service client", zap.Error(err))
	}
	defer svc.Close()

	// Toasts are fanned out to websocket clients and kept for polling.
	wsManager := websocket.NewManager(logger)
	defer wsManager.Close()
	toasts := notifications.NewService(wsManager, logger)

	portal := app.NewMarketplace(cfg, svc, toasts, logger)
	initCtx, cancelInit := context.WithTimeout(context.Background(), app.InitTimeout(cfg.Remote))
	if err := portal.Init(initCtx); err != nil {
		logger.Error("Initial fetch failed, serving reload only", zap.Error(err))
	}
	cancelInit()

	handlerOpts := []marketplace.HandlerOption{
		marketplace.WithToasts(toasts),
		marketplace.WithWebsocket(wsManager),
	}
	exports, err := app.NewExportStore(context.Background(), cfg.Export, logger)
	if err != nil {
		logger.Fatal("Failed to configure export uploads", zap.Error(err))
	}
	if exports != nil {
		handlerOpts = append(handlerOpts, marketplace.WithExportStore(exports))
		logger.Info("Export uploads enabled", zap.String("bucket", cfg.Export.S3Bucket))
	}

	if cfg.Refresh.Enabled {
		refresher, err := marketplace.NewRefresher(portal, cfg.Refresh.Spec, cfg.Remote.Timeout.Duration, wsManager, logger)
		if err != nil {
			logger.Fatal("Failed to schedule refreshes", zap.Error(err))
		}
		refresher.Start()
		defer refresher.Stop()
	}

	marketplaceHandler := marketplace.NewHandler(portal, logger, handlerOpts...)

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors(cfg.Server.AllowedOrigins))

	// Register Routes
	api := router.Group("/api/v1")
	{
		marketplaceHandler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		st := portal.Status()
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"initialized": st.Initialized,
			"websockets":  wsManager.GetConnectionCount(),
			"timestamp":   time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("remote_mode", cfg.Remote.Mode))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.json"
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowOrigin(allowed, c.GetHeader("Origin"))
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}
