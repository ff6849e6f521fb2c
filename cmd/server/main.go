// @title           App056 Avatar API
// @version         1.0.0
// @description     Local API for the AI avatar app: style catalog, avatar creation, generation jobs with background status polling, the project gallery and subscription state. Progress is pushed over server-sent events.

// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token returned by POST /session.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BroadApps-official/App-056/internal/avatarapi"
	"github.com/BroadApps-official/App-056/internal/avatars"
	"github.com/BroadApps-official/App-056/internal/catalog"
	"github.com/BroadApps-official/App-056/internal/config"
	"github.com/BroadApps-official/App-056/internal/database"
	"github.com/BroadApps-official/App-056/internal/generation"
	"github.com/BroadApps-official/App-056/internal/handlers"
	"github.com/BroadApps-official/App-056/internal/imagecache"
	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/metrics"
	"github.com/BroadApps-official/App-056/internal/middleware"
	"github.com/BroadApps-official/App-056/internal/realtime"
	"github.com/BroadApps-official/App-056/internal/services"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/BroadApps-official/App-056/internal/subscription"
	"github.com/BroadApps-official/App-056/internal/supabase"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	sessionTokenTTL = 30 * 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{Path: cfg.DatabasePath, URL: cfg.DatabaseURL}, appLog)
	if err != nil {
		appLog.Fatal("Failed to open database", "error", err)
	}
	defer database.Close(db)

	// Realtime: in-process by default, mirrored through Redis when configured.
	memBus := realtime.NewMemoryBus(appLog)
	var bus realtime.Bus = memBus
	if cfg.RedisAddr != "" {
		redisBus, err := realtime.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, memBus, appLog)
		if err != nil {
			appLog.Warn("Redis unavailable, using in-process events only", "error", err)
		} else {
			defer redisBus.Close()
			if err := redisBus.StartForwarder(ctx); err != nil {
				appLog.Warn("Redis forwarder failed to start", "error", err)
			}
			bus = redisBus
		}
	}

	apiClient := avatarapi.NewClient(avatarapi.Options{
		BaseURL:   cfg.AvatarAPIBaseURL,
		Token:     cfg.AvatarAPIToken,
		Source:    cfg.AvatarAPISource,
		Lang:      cfg.AvatarAPILang,
		Tag:       cfg.AvatarAPITag,
		Timeout:   cfg.AvatarAPITimeout,
		RateLimit: cfg.AvatarAPIRateLimit,
	})

	images, err := imagecache.New(imagecache.Options{
		Dir:          cfg.CacheDir,
		AllowedHosts: cfg.ImageAllowedHosts,
	}, appLog)
	if err != nil {
		appLog.Fatal("Failed to init image cache", "error", err)
	}

	users := store.NewUsers(db, appLog)
	projects := store.NewProjects(db, bus, appLog)
	snapshots := store.NewStyleSnapshots(db, appLog)

	billing := subscription.NewStaticBilling(subscription.DefaultPlans(), cfg.DevEntitled)
	gate := subscription.NewGate(billing, apiClient, bus, cfg.RequireEntitlement, appLog)
	if err := gate.Refresh(ctx); err != nil {
		appLog.Warn("Failed to refresh subscription state", "error", err)
	}

	styles := catalog.NewService(ctx, apiClient, snapshots, images, appLog)

	avatarService := avatars.NewService(apiClient, gate, bus, avatars.Options{
		PollInterval: cfg.AvatarPollInterval,
		MaxFailures:  cfg.PollMaxFailures,
		Deadline:     cfg.PollDeadline,
		ProductID:    cfg.AddAvatarProductID,
	}, appLog)
	defer avatarService.Close()

	orchestrator := generation.New(generation.Deps{
		Client:   apiClient,
		Projects: projects,
		Gate:     gate,
		Users:    users,
		Bus:      bus,
	}, generation.Options{
		PollInterval: cfg.PollInterval,
		NotifyAfter:  cfg.NotifyAfter,
		MaxFailures:  cfg.PollMaxFailures,
		Deadline:     cfg.PollDeadline,
		Retention:    cfg.JobRetention,
	}, appLog)
	defer orchestrator.Close()

	var onDeleted handlers.DeletedHook
	if cfg.ArchiveEnabled() {
		storageClient := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseStorageBucket)
		archive := services.NewArchiveService(images, storageClient, appLog)
		orchestrator.OnCompleted(archive.HandleCompleted)
		onDeleted = func(userID, projectID string) { go archive.HandleDeleted(userID, projectID) }
		appLog.Info("Result archive enabled", "bucket", cfg.SupabaseStorageBucket)
	}

	if n, err := orchestrator.Resume(ctx); err != nil {
		appLog.Error("Failed to resume pending generations", "error", err)
	} else if n > 0 {
		appLog.Info("Pending generations resumed", "count", n)
	}

	sessionHandler := handlers.NewSessionHandler(users, apiClient, cfg.LocalAPISecret, sessionTokenTTL, appLog)
	stylesHandler := handlers.NewStylesHandler(styles, users)
	avatarsHandler := handlers.NewAvatarsHandler(avatarService, users)
	generationsHandler := handlers.NewGenerationsHandler(orchestrator)
	projectsHandler := handlers.NewProjectsHandler(projects, onDeleted)
	imagesHandler := handlers.NewImagesHandler(images)
	subscriptionHandler := handlers.NewSubscriptionHandler(gate)
	eventsHandler := handlers.NewEventsHandler(bus, 15*time.Second, appLog)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(appLog))
	router.Use(metrics.GinMiddleware())

	// Without configured origins no cross-origin page may call the local API.
	if len(cfg.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		router.Use(cors.New(corsCfg))
	}

	// No auth
	router.GET("/health", handlers.HealthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.POST("/api/v1/session", sessionHandler.CreateSession)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	api.GET("/me", sessionHandler.GetMe)
	api.PATCH("/me", sessionHandler.UpdateMe)

	api.GET("/styles", stylesHandler.GetStyles)

	api.GET("/avatars", avatarsHandler.ListAvatars)
	api.POST("/avatars", avatarsHandler.CreateAvatar)
	api.POST("/avatars/slots", avatarsHandler.BuySlot)

	api.POST("/generations", generationsHandler.CreateGeneration)
	api.GET("/generations", generationsHandler.ListGenerations)
	api.GET("/generations/:job_id", generationsHandler.GetGeneration)
	api.DELETE("/generations/:job_id", generationsHandler.CancelGeneration)

	api.GET("/projects", projectsHandler.ListProjects)
	api.POST("/projects/delete", projectsHandler.DeleteProjects)
	api.DELETE("/projects/:project_id", projectsHandler.DeleteProject)
	api.PATCH("/projects/:project_id", projectsHandler.SelectProject)

	api.GET("/images", imagesHandler.GetImage)

	api.GET("/subscription", subscriptionHandler.GetSubscription)
	api.POST("/subscription/purchase", subscriptionHandler.Purchase)
	api.POST("/subscription/restore", subscriptionHandler.Restore)

	api.GET("/events", eventsHandler.Stream)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("Server starting", "addr", cfg.ListenAddr(), "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Graceful shutdown failed", "error", err)
	}
}
