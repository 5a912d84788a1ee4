// Package main is the entrypoint for the Linktrail API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/config"
	"github.com/linktrail/linktrail/internal/geo"
	"github.com/linktrail/linktrail/internal/handler"
	"github.com/linktrail/linktrail/internal/metrics"
	"github.com/linktrail/linktrail/internal/middleware"
	"github.com/linktrail/linktrail/internal/repository"
	"github.com/linktrail/linktrail/internal/server"
	"github.com/linktrail/linktrail/internal/service"
	"github.com/linktrail/linktrail/internal/sweep"
	"github.com/linktrail/linktrail/internal/tracking"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	metricsRecorder := metrics.NewInMemory()

	// Attribution pipeline
	geoResolver := geo.New(cacheClient, cfg.GeoLookupURL, cfg.GeoLookupTimeout, cfg.GeoLookupEnabled, logger)
	cookieWriter := tracking.NewCookieWriter(cfg.CookieTTL, cfg.CookieSecure)
	clickRecorder := tracking.NewClickRecorder(repo, repo, cacheClient, geoResolver, cookieWriter, cfg.ClickDedupWindow, metricsRecorder, logger)
	resolver := tracking.NewResolver(repo, cacheClient, metricsRecorder, logger)
	conversionRecorder := tracking.NewConversionRecorder(repo, repo, repo, cacheClient, metricsRecorder, logger)

	linkService := service.NewLinkService(repo, cfg.SiteURL, cfg.BaseURL, metricsRecorder)

	// Handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	linkHandler := handler.NewLinkHandler(linkService, logger)
	redirectHandler := handler.NewRedirectHandler(clickRecorder, logger)
	conversionHandler := handler.NewConversionHandler(resolver, conversionRecorder, cookieWriter, cfg.ConversionSecret, logger)
	analyticsHandler := handler.NewAnalyticsHandler(repo, logger)
	exportHandler := handler.NewExportHandler(repo, logger)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	r := setupRouter(routerDeps{
		base:       h,
		health:     healthHandler,
		link:       linkHandler,
		redirect:   redirectHandler,
		conversion: conversionHandler,
		analytics:  analyticsHandler,
		export:     exportHandler,
		metrics:    metricsHandler,
		cache:      cacheClient,
		cfg:        cfg,
		logger:     logger,
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Retention sweep
	sweeper := sweep.New(repo, cfg.ClickRetention, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start sweep", "error", err)
		os.Exit(1)
	}
	srv.OnShutdown("sweep", sweeper.Stop)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"site_url", cfg.SiteURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routerDeps struct {
	base       *handler.Handler
	health     *handler.HealthHandler
	link       *handler.LinkHandler
	redirect   *handler.RedirectHandler
	conversion *handler.ConversionHandler
	analytics  *handler.AnalyticsHandler
	export     *handler.ExportHandler
	metrics    *handler.MetricsHandler
	cache      *cache.Cache
	cfg        *config.Config
	logger     *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))

	// Health endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)

	authCfg := middleware.AuthConfig{
		Logger:       deps.logger,
		AdminKeyHash: deps.cfg.AdminKeyHash,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:          deps.logger,
		Cache:           deps.cache,
		RedirectEnabled: deps.cfg.RateLimitRedirectEnabled,
		RedirectRPS:     deps.cfg.RateLimitRedirectRPS,
		RedirectBurst:   deps.cfg.RateLimitRedirectBurst,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Conversion triggers carry their own HMAC signature; everything
		// else is behind the admin key.
		r.Post("/conversions", deps.conversion.Convert)
		r.Post("/checkouts", deps.conversion.CaptureCheckout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(authCfg))

			r.Route("/links", func(r chi.Router) {
				r.Get("/", deps.link.List)
				r.Post("/", deps.link.Create)
				r.Post("/bulk-deactivate", deps.link.BulkDeactivate)
				r.Get("/{id}", deps.link.Get)
				r.Patch("/{id}", deps.link.Update)
				r.Delete("/{id}", deps.link.Deactivate)
				r.Get("/{id}/stats", deps.analytics.LinkStats)
			})

			r.Get("/stats", deps.analytics.SiteStats)
			r.Get("/export/clicks", deps.export.Clicks)
			r.Get("/metrics", deps.metrics.Metrics)
		})
	})

	// Redirect handler with IP-based rate limiting (no auth required)
	r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/{shortCode}", deps.redirect.Redirect)

	// 404 and 405 handlers
	r.NotFound(deps.base.NotFound)
	r.MethodNotAllowed(deps.base.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
