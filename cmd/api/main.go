package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"association/internal/attendance"
	"association/internal/auth"
	"association/internal/config"
	"association/internal/handler"
	"association/internal/httpmiddleware"
	"association/internal/identity"
	"association/internal/logging"
	"association/internal/queue"
	"association/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = logger.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := store.OpenRecords(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = records.Close(context.Background()) }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		// No separate worker can see this queue, so drain it here.
		go func() {
			_ = queue.NewCounterWorker(q, records, cfg.CounterRetryMax, logger).Run(ctx)
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)
	}

	accounts := identity.NewProvider(records, redisClient.Client, cfg.StatusCacheTTL, logger)
	svc := attendance.NewService(records, accounts,
		attendance.WithRotationInterval(cfg.RotationInterval),
		attendance.WithDefaultDuration(cfg.DefaultDurationMinutes),
		attendance.WithCounterRetrier(queue.NewRetrier(q)),
		attendance.WithMetrics(attendance.NewMetrics(prometheus.DefaultRegisterer)),
		attendance.WithLogger(logger),
	)
	defer svc.Close()

	if _, err := svc.Resume(ctx); err != nil {
		logger.Warn("resume qr sessions failed", zap.Error(err))
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.QueueBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(logging.Recovery(logger))
	r.Use(logging.GinMiddleware(logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	checks := map[string]handler.HealthCheck{"db": records.Ping}
	if usesRedis(cfg) {
		checks["redis"] = func(ctx context.Context) error {
			if !redisClient.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		}
	}
	handler.New(svc, records, checks, logger).Register(r,
		auth.MemberAuth(cfg.JWTSigningKey, cfg.JWTIssuer),
		httpmiddleware.RateLimit(limiter),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// usesRedis reports whether any component talks to Redis: the counter queue,
// the shared rate limit window or the status cache.
func usesRedis(cfg config.App) bool {
	return cfg.QueueBackend == "redis" || cfg.StatusCacheTTL > 0
}

// corsConfig allows any origin without credentials, or credentials for an
// explicit origin list only.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
