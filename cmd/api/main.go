package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/shopads/ads-api/internal/config"
	"github.com/shopads/ads-api/internal/domain/admetrics"
	"github.com/shopads/ads-api/internal/domain/ads"
	"github.com/shopads/ads-api/internal/domain/customer"
	"github.com/shopads/ads-api/internal/middleware"
	"github.com/shopads/ads-api/internal/pkg/database"
	"github.com/shopads/ads-api/internal/pkg/imaging"
	"github.com/shopads/ads-api/internal/pkg/jwt"
	"github.com/shopads/ads-api/internal/pkg/logger"
	pkgresponse "github.com/shopads/ads-api/internal/pkg/response"
	"github.com/shopads/ads-api/internal/pkg/scheduler"
	"github.com/shopads/ads-api/internal/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	// Money is written as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting ads API")

	if cfg.Database.RunMigrations {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	db, err := database.NewPostgres(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	hostname, _ := os.Hostname()
	locker := database.NewRedisLocker(redis, hostname+"/"+uuid.NewString())

	jwtService := jwt.NewService(cfg.JWTSecret, 0)

	jobs := scheduler.New()

	mediaStore, err := storage.New(context.Background(), storage.Config{
		S3Bucket:    cfg.Storage.Bucket,
		S3Region:    cfg.Storage.Region,
		S3Endpoint:  cfg.Storage.Endpoint,
		S3AccessKey: cfg.Storage.AccessKey,
		S3SecretKey: cfg.Storage.SecretKey,
		PublicURL:   cfg.Storage.PublicURL,
		LocalDir:    cfg.Storage.LocalDir,
	})
	if err != nil {
		// Uploads answer 503 but everything else keeps serving
		log.Error().Err(err).Msg("Media storage unavailable, uploads disabled")
		mediaStore = nil
	}

	// ---------- Repositories ----------
	customerRepo := customer.NewRepository(db)
	metricsRepo := admetrics.NewRepository(db)
	adsRepo := ads.NewRepository(db)

	// ---------- Services ----------
	metricsService := admetrics.NewService(metricsRepo, db)
	adsService := ads.NewService(adsRepo, metricsService, customerRepo, jobs, db, ads.Config{
		NewUserWindow: cfg.Ads.NewUserWindow,
	})

	var media *ads.MediaUploader
	if mediaStore != nil {
		processor := imaging.NewProcessor(imaging.Config{
			MaxEdge: cfg.Ads.MediaMaxEdge,
			Quality: imaging.DefaultConfig().Quality,
		})
		media = ads.NewMediaUploader(mediaStore, processor, cfg.Ads.MediaMaxFiles, cfg.Ads.MediaMaxSize)
	}

	// ---------- Handlers ----------
	metricsHandler := admetrics.NewHandler(metricsService)
	adsHandler := ads.NewHandler(adsService, media)

	// ---------- Background ----------
	sweeper := ads.NewSweeper(adsService, jobs, locker, cfg.Ads.SweepCron, cfg.Ads.SweepLockTTL)
	if err := sweeper.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start lifecycle sweeper")
	}

	// ---------- Router ----------
	uploadsDir := ""
	if cfg.Storage.Bucket == "" && mediaStore != nil {
		uploadsDir = cfg.Storage.LocalDir
	}

	authMiddleware := middleware.Auth(jwtService)
	r := newRouter(cfg.AllowedOrigins, uploadsDir, func(r chi.Router) {
		r.Mount("/ads", adsHandler.Routes(authMiddleware, middleware.RequireAdmin(), metricsHandler.Routes))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sweeper.Stop()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduler did not drain in time")
	}

	log.Info().Msg("Server exited properly")
}

// newRouter builds the HTTP surface. uploadsDir, when set, is served under
// /uploads for the local storage backend.
func newRouter(allowedOrigins []string, uploadsDir string, mountAPI func(chi.Router)) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	if uploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadsDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		mountAPI(r)
	})

	return r
}
