package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/knowledgehub/kms-backend/internal/kms/consumers"
	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/handler"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/internal/kms/service"
	"github.com/knowledgehub/kms-backend/pkg/auth"
	"github.com/knowledgehub/kms-backend/pkg/config"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/httputil"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
	"github.com/knowledgehub/kms-backend/pkg/metrics"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("kms-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("kms-service", cfg.Server.Environment)
	log.Info().Msg("starting KMS Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	documentPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeDocumentEvents, "kms-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create document event publisher")
	}
	collectionPublisher, err := messaging.NewPublisher(rmq, messaging.ExchangeCollectionEvents, "kms-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create collection event publisher")
	}
	publisher := events.NewEventPublisher(documentPublisher, collectionPublisher, log)

	m := metrics.New()

	// Repositories
	documentRepo := repository.NewDocumentRepository(db)
	collectedRepo := repository.NewCollectedRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	spaceRepo := repository.NewSpaceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	userCacheRepo := repository.NewUserCacheRepository(db)

	// Services. The scanner shares the lifecycle lock table so a scan
	// never interleaves with a manual transition on the same document.
	locks := service.NewLockTable()
	documentService := service.NewDocumentService(documentRepo, categoryRepo, spaceRepo, log)
	lifecycleService := service.NewLifecycleService(documentRepo, categoryRepo, collectedRepo, auditRepo, publisher, m, log, locks)
	intakeService := service.NewIntakeService(collectedRepo, categoryRepo, spaceRepo, publisher, m, log)
	categoryService := service.NewCategoryService(categoryRepo, documentRepo, publisher, log)
	spaceService := service.NewSpaceService(spaceRepo, userCacheRepo, log)
	scanner := service.NewExpiryScanner(documentRepo, publisher, m, log, locks, cfg.Lifecycle.NearExpiryThresholdDays)
	dashboardService := service.NewDashboardService(statsRepo, collectedRepo, documentRepo, log, cfg.Lifecycle.NearExpiryThresholdDays)

	// Handlers
	documentHandler := handler.NewDocumentHandler(documentService, lifecycleService, log)
	collectionHandler := handler.NewCollectionHandler(intakeService, log)
	categoryHandler := handler.NewCategoryHandler(categoryService, log)
	spaceHandler := handler.NewSpaceHandler(spaceService, log)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, scanner, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background expiry scanning
	scheduler := service.NewExpiryScheduler(scanner, cfg.Lifecycle.ExpiryScanInterval, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// User event consumer keeps the local user projection fresh
	userConsumer, err := consumers.NewUserEventConsumer(rmq, userCacheRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create user event consumer")
	}
	if err := userConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start user event consumer")
	}

	authManager := auth.NewManager(&cfg.JWT)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return origin == "http://localhost:3000" || origin == "http://localhost:5173"
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "kms-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authManager.Middleware())

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", documentHandler.List)
			r.Post("/", documentHandler.Create)
			r.Get("/{id}", documentHandler.Get)
			r.Put("/{id}", documentHandler.Update)
			r.Post("/{id}/submit", documentHandler.Submit)
			r.Post("/{id}/approve", documentHandler.Approve)
			r.Post("/{id}/reject", documentHandler.Reject)
			r.Post("/{id}/extend", documentHandler.Extend)
			r.Post("/{id}/archive", documentHandler.Archive)
			r.Post("/{id}/hide", documentHandler.Hide)
			r.Post("/{id}/unhide", documentHandler.Unhide)
			r.Get("/{id}/versions", documentHandler.Versions)
			r.Post("/{id}/versions", documentHandler.CreateVersion)
			r.Get("/{id}/extensions", documentHandler.Extensions)
			r.Get("/{id}/audit", documentHandler.Audit)
		})

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", collectionHandler.List)
			r.Post("/upload", collectionHandler.Upload)
			r.Post("/classify", collectionHandler.Classify)
			r.Post("/send-to-approval", collectionHandler.SendToApproval)
			r.Post("/discard", collectionHandler.Discard)
			r.Get("/{id}", collectionHandler.Get)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/tree", categoryHandler.Tree)
			r.Post("/", categoryHandler.Create)
			r.Get("/{id}", categoryHandler.Get)
			r.Put("/{id}", categoryHandler.Update)
			r.Put("/{id}/toggle-status", categoryHandler.ToggleStatus)
			r.Delete("/{id}", categoryHandler.Delete)
		})

		r.Route("/spaces", func(r chi.Router) {
			r.Get("/", spaceHandler.List)
			r.Post("/", spaceHandler.Create)
			r.Get("/{id}", spaceHandler.Get)
			r.Put("/{id}", spaceHandler.Update)
			r.Get("/{id}/members", spaceHandler.Members)
			r.Post("/{id}/members", spaceHandler.AddMember)
			r.Put("/{id}/members/{userID}", spaceHandler.UpdateMemberRole)
			r.Delete("/{id}/members/{userID}", spaceHandler.RemoveMember)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/overview", dashboardHandler.Overview)
			r.Get("/expiring", dashboardHandler.Expiring)
			r.Post("/expiry-scan", dashboardHandler.RunExpiryScan)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
