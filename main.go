// File: quickconnect/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quickconnect/config"
	"quickconnect/cron"
	"quickconnect/database"
	professionalRepo "quickconnect/database/repository/professional"
	sessionRepo "quickconnect/database/repository/session"
	"quickconnect/gateway"
	"quickconnect/handlers"
	"quickconnect/routes"
	"quickconnect/services/billing"
	"quickconnect/services/matching"
	"quickconnect/services/notification"
	"quickconnect/services/registry"
	"quickconnect/services/session"
	"quickconnect/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.FirebaseInit()

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	stripe.Key = config.AppConfig.StripeKey

	// repositories.
	proRepo := professionalRepo.NewMongoProfessionalRepo()
	sessRepo := sessionRepo.NewMongoSessionRepo()
	if mongoRepo, ok := proRepo.(*professionalRepo.MongoProfessionalRepo); ok {
		if err := mongoRepo.EnsureIndexes(); err != nil {
			logger.Sugar().Warnf("main: failed to ensure indexes: %v", err)
		}
	}

	// Seed the in-memory availability registry from the directory, then keep
	// expired locks swept in the background.
	reg := registry.New(proRepo, logger)
	pros, err := proRepo.GetAll()
	if err != nil {
		logger.Sugar().Fatalf("main: failed to load professionals: %v", err)
	}
	for i := range pros {
		reg.Register(pros[i].ID, pros[i].Live)
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	reg.StartSweeper(sweepCtx, config.SweepInterval())

	// background queue.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer asynqClient.Close()
	enqueuer := notification.NewAsynqEnqueuer(asynqClient)
	pushService := notification.NewFCMService(logger)

	// services.
	processor := billing.NewStripeProcessor(config.AppConfig.StripeCurrency, logger)
	lifecycle := session.NewLifecycle(sessRepo, reg, processor, enqueuer, logger)
	coordinator := matching.NewCoordinator(proRepo, reg, lifecycle, utils.GetCacheClient(), logger)
	coordinator.CandidateLimit = config.AppConfig.MaxCandidates
	coordinator.ReservationTTL = config.ReservationTTL()

	gw := gateway.New(coordinator, reg, lifecycle, proRepo, logger)

	cron.InitSessionWorker(pushService, proRepo, sessRepo)

	// Assemble the handler bundle.
	handlerBundle := &handlers.HandlerBundle{
		ProfessionalRepo: proRepo,
		SessionRepo:      sessRepo,

		// Professional endpoints.
		GetByCategoryHandler:  handlers.GetProfessionalsByCategory(coordinator),
		SearchHandler:         handlers.SearchProfessionals(proRepo),
		UpdatePresenceHandler: handlers.UpdatePresence(reg),
		ListCategoriesHandler: handlers.ListCategories(proRepo),

		// Matching endpoints.
		RunMatchHandler:    handlers.RunMatch(coordinator),
		ReserveHandler:     handlers.ReserveProfessional(coordinator),
		ReserveBestHandler: handlers.ReserveBest(coordinator),
		ReleaseHandler:     handlers.ReleaseReservation(coordinator),
		ConfirmHandler:     handlers.ConfirmReservation(coordinator),

		// Session endpoints.
		GetSessionHandler:      handlers.GetSession(lifecycle),
		CompleteSessionHandler: handlers.CompleteSession(lifecycle),
		RateSessionHandler:     handlers.RateSession(lifecycle),
		SessionStatusHandler:   handlers.UpdateSessionStatus(lifecycle),

		// Websocket endpoints.
		BrowseSocketHandler:  gw.HandleBrowse,
		SessionSocketHandler: gw.HandleSession,
	}

	// Register routes with the assembled handler bundle.
	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
