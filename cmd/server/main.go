package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/latticelock/pattern-gateway/internal/api"
	"github.com/latticelock/pattern-gateway/internal/audit"
	"github.com/latticelock/pattern-gateway/internal/cache"
	"github.com/latticelock/pattern-gateway/internal/config"
	"github.com/latticelock/pattern-gateway/internal/generator"
	"github.com/latticelock/pattern-gateway/internal/metrics"
	"github.com/latticelock/pattern-gateway/internal/middleware"
	"github.com/latticelock/pattern-gateway/internal/signature"
	"github.com/latticelock/pattern-gateway/internal/store"
	"github.com/latticelock/pattern-gateway/internal/tracing"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting Pattern Gateway")

	// Initialize metrics
	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()

	// Initialize signature service
	signer, err := buildSigner(&cfg.Signing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize signature service")
	}

	// Initialize pattern generator
	gen, err := generator.NewSecureGenerator(signer, cfg.Signing.ManufacturerID)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create pattern generator")
	}

	// Open pattern store if enabled
	var patternStore *store.Store
	if cfg.Store.Enabled {
		patternStore, err = store.Open(cfg.Store.Path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open pattern store")
		}
		defer patternStore.Close()

		if n, err := patternStore.Count(); err == nil {
			m.SetStoredPatterns(n)
			logger.WithFields(logrus.Fields{
				"path":  cfg.Store.Path,
				"count": n,
			}).Info("Pattern store opened")
		}
	}

	// Initialize cache if enabled
	var patternCache cache.Cache
	if cfg.Cache.Enabled {
		patternCache = cache.NewMemoryCache(
			cfg.Cache.MaxSize,
			cfg.Cache.MaxItems,
			cfg.Cache.DefaultTTL,
		)
		logger.WithFields(logrus.Fields{
			"max_size":    cfg.Cache.MaxSize,
			"max_items":   cfg.Cache.MaxItems,
			"default_ttl": cfg.Cache.DefaultTTL,
		}).Info("Cache enabled")
	}

	// Initialize audit logger if enabled
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithFields(logrus.Fields{
			"max_events": cfg.Audit.MaxEvents,
		}).Info("Audit logging enabled")
	}

	// Load material profiles if configured
	var profiles *config.ProfileManager
	if len(cfg.ProfilePaths) > 0 {
		profiles = config.NewProfileManager()
		if err := profiles.LoadProfiles(cfg.ProfilePaths); err != nil {
			logger.WithError(err).Fatal("Failed to load material profiles")
		}
		logger.WithField("paths", cfg.ProfilePaths).Info("Material profiles loaded")
	}

	// Set up tracing
	shutdownTracing, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up tracing")
	}

	// Initialize API handler
	handler := api.NewHandlerWithFeatures(gen, logger, m, patternStore, patternCache, auditLogger, profiles, cfg)

	// Setup router
	router := mux.NewRouter()

	// Register metrics endpoint
	router.Handle("/metrics", m.Handler()).Methods("GET")

	// Register API routes
	handler.RegisterRoutes(router)

	// Apply middleware
	httpHandler := middleware.RecoveryMiddleware(logger)(router)
	httpHandler = middleware.LoggingMiddleware(logger, &cfg.Logging)(httpHandler)
	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)
	httpHandler = middleware.APIKeyMiddleware(cfg.APIKey, logger)(httpHandler)

	// Add rate limiting if enabled
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			cfg.RateLimit.Limit,
			cfg.RateLimit.Window,
			logger,
		)
		defer rateLimiter.Stop()
		httpHandler = middleware.RateLimitMiddleware(rateLimiter)(httpHandler)
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	if cfg.Tracing.Enabled {
		httpHandler = middleware.TracingMiddleware(cfg.Tracing.RedactSensitive)(httpHandler)
	}

	// Watch the config file for reloads; signing key rotation rides this
	// path so rotations are serialized with other config changes.
	reloader, err := config.NewConfigReloader(configPath, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create config reloader")
	}
	reloader.SetOnReloadCallback(func(old, new *config.Config) error {
		if new.Signing.KeyBase64 != "" && new.Signing.KeyBase64 != old.Signing.KeyBase64 {
			key, err := base64.StdEncoding.DecodeString(new.Signing.KeyBase64)
			if err == nil {
				err = signer.Rotate(key)
			}
			if auditLogger != nil {
				auditLogger.LogKeyRotation(err == nil, err)
			}
			if err != nil {
				logger.WithError(err).Error("Signing key rotation failed")
				return err
			}
			m.RecordKeyRotation()
			logger.Info("Signing key rotated")
		}
		if new.LogLevel != old.LogLevel {
			if level, err := logrus.ParseLevel(new.LogLevel); err == nil {
				logger.SetLevel(level)
			}
		}
		return nil
	})
	go reloader.Start()
	defer reloader.Stop()

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.WithFields(logrus.Fields{
				"addr":      cfg.ListenAddr,
				"cert_file": cfg.TLS.CertFile,
				"key_file":  cfg.TLS.KeyFile,
			}).Info("Starting HTTPS server")
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}

	if err := shutdownTracing(ctx); err != nil {
		logger.WithError(err).Warn("Tracing shutdown failed")
	}
}

// buildSigner constructs the signature service from either a key file or an
// inline base64 key. Validate guarantees exactly one source is set.
func buildSigner(cfg *config.SigningConfig) (*signature.Service, error) {
	if cfg.KeyFile != "" {
		key, err := signature.LoadOrCreateKeyFile(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		return signature.NewServiceWithKey(key)
	}
	return signature.FromBase64(cfg.KeyBase64)
}
