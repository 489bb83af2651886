package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/middlewares"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// readinessGate answers 503 for API routes until the database is connected.
func readinessGate(dbReady func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/healthz", "/metrics":
			c.Next()
			return
		}
		if !dbReady() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		c.Next()
	}
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production origins must be listed in CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = true
	return corsConfig
}

// newRouter builds the HTTP surface over db. dbReady gates the API routes.
func newRouter(db *gorm.DB, dbReady func() bool, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(readinessGate(dbReady))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(cors.New(corsConfig()))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		if client := config.GetRedisDB(); client != nil {
			limit := int64(600)
			if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					limit = n
				}
			}
			windowSec := int64(60)
			if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					windowSec = n
				}
			}
			r.Use(NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second).RateLimitMiddleware)
		}
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/purchase-orders/:id", documentAction(db, models.GetPurchaseOrder))
	api.GET("/grn/:id", documentAction(db, models.GetGoodsReceipt))
	api.GET("/invoices/:id", documentAction(db, models.GetSalesInvoice))
	api.GET("/transfers/:id", documentAction(db, models.GetTransferVoucher))
	api.GET("/vendor-returns/:id", documentAction(db, models.GetVendorReturn))
	api.GET("/batches/:id", documentAction(db, models.GetBatchLot))

	api.GET("/stock", stockHandler(db))
	api.GET("/stock/global", globalStockHandler(db))
	api.GET("/stock/low", lowStockHandler(db))
	api.GET("/stock/near-expiry", nearExpiryHandler(db))

	api.GET("/compliance/h1", h1RegisterHandler(db))
	api.GET("/compliance/ndps/:productId", ndpsRegisterHandler(db, false))

	write := api.Group("", middlewares.RequireActor())
	write.POST("/products", createProductHandler(db))
	write.POST("/locations", createLocationHandler(db))
	write.PUT("/settings/:key", setSettingHandler(db))

	write.POST("/purchase-orders", createHandler(db, models.CreatePurchaseOrder))
	write.POST("/purchase-orders/:id/cancel", documentAction(db, models.CancelPurchaseOrder))

	write.POST("/grn", createHandler(db, models.CreateGoodsReceipt))
	write.POST("/grn/:id/post", postGoodsReceiptHandler(db))

	write.POST("/invoices", createHandler(db, models.CreateSalesInvoice))
	write.POST("/invoices/:id/prescription", attachPrescriptionHandler(db))
	write.POST("/invoices/:id/payments", addPaymentHandler(db))
	write.POST("/invoices/:id/post", postSalesInvoiceHandler(db))
	write.POST("/invoices/:id/cancel", documentAction(db, workflow.CancelSalesInvoice))

	write.POST("/transfers", createHandler(db, models.CreateTransferVoucher))
	write.POST("/transfers/:id/post", documentAction(db, workflow.PostTransferVoucher))
	write.POST("/transfers/:id/receive", documentAction(db, workflow.ReceiveTransferVoucher))
	write.POST("/transfers/:id/cancel", documentAction(db, workflow.CancelTransferVoucher))

	write.POST("/vendor-returns", createHandler(db, models.CreateVendorReturn))
	write.POST("/vendor-returns/:id/post", documentAction(db, workflow.PostVendorReturn))

	write.POST("/adjustments", createHandler(db, workflow.PostStockAdjustment))
	write.POST("/batches/:id/recall", recallHandler(db))

	write.POST("/compliance/ndps/:productId/recompute", ndpsRegisterHandler(db, true))
	write.POST("/jobs/:name/run", runJobHandler(db))

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Redis first: the router reads it for the rate limiter. It is optional.
	config.ConnectRedisWithRetry(sigCtx)

	// Routes resolve the DB through a lazy handle so the port can open before the DB is up.
	r := newRouter(nil, func() bool { return config.GetDB() != nil }, logger)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; allow running it as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal("AutoMigrate failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	workerCtx, cancelWorkers := context.WithCancel(sigCtx)
	defer cancelWorkers()

	// Notifications are written to the outbox in the request and published after commit.
	if config.PubSubConfigured() {
		go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "notifications"}).Warn("NOTIFICATION_TOPIC not configured; notifications are logged only")
	}

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED")), "false") {
		scheduler, err := workflow.StartScheduler(workerCtx, db)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Fatal("invalid job schedule: " + err.Error())
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/api")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers before draining requests.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in a fixed window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := rl.client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
