package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripchat/internal/config"
	"tripchat/internal/handlers/shared"
	"tripchat/internal/middleware"
	"tripchat/internal/services"
	"tripchat/internal/utils"
	"tripchat/pkg/logger"
	"tripchat/pkg/payment"
	"tripchat/pkg/websocket"
	"tripchat/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nrApp := newRelicApp(cfg.Monitoring, appLogger)

	store, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open store")
	}
	defer store.close()

	limiter, err := openCache(cfg.Redis, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to redis")
	}
	defer limiter.Close()

	// Payment gateways
	registry := payment.NewRegistry()
	if cfg.Payment.Stripe.SecretKey != "" {
		registry.Register(payment.NewStripeProvider(cfg.Payment.Stripe.SecretKey, cfg.Payment.Stripe.WebhookSecret))
	}
	if cfg.Payment.Razorpay.KeyID != "" {
		registry.Register(payment.NewRazorpayProvider(cfg.Payment.Razorpay.KeyID, cfg.Payment.Razorpay.KeySecret, cfg.Payment.Razorpay.Webhook))
	}

	// Core services
	tokenService := services.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAccessTokenTTL)
	bookingService := services.NewBookingService(store.bookings, store.trips, registry, appLogger)
	accessService := services.NewAccessService(store.trips, store.bookings, appLogger)

	presence := websocket.NewPresence()
	router := websocket.NewRouter(accessService, presence, cfg.Chat.MaxRoomParties, appLogger)
	sessions := websocket.NewSessionManager(tokenService, presence, router, websocket.SessionOptions{
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		SendBufferSize:   cfg.WebSocket.SendBufferSize,
	}, appLogger)

	notificationService := newNotificationService(ctx, cfg, store, appLogger)
	messageService := services.NewMessageService(
		store.messages,
		accessService,
		router,
		presence,
		limiter,
		newGeocoder(cfg.Maps, appLogger),
		notificationService,
		services.MessageConfig{
			MaxMessageLength: cfg.Chat.MaxMessageLength,
			SendRateLimit:    cfg.Chat.SendRateLimit,
			SendRateWindow:   cfg.Chat.SendRateWindow,
			GeocodeTimeout:   cfg.Chat.GeocodeTimeout,
		},
		appLogger,
	)
	paymentService := services.NewPaymentService(registry, bookingService, limiter, cfg.Payment.WebhookDedupTTL, appLogger)

	// Booking listeners; the realtime one runs first so rooms close before notices go out
	bookingService.AddListener(services.NewRealtimeNotifier(router, sessions, appLogger))
	bookingService.AddListener(notificationService)
	if cfg.Chat.ArchiveOnComplete {
		archive, closeArchive, err := newArchiveService(ctx, cfg.Storage, store.messages, appLogger)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize transcript storage")
		}
		defer closeArchive()
		bookingService.AddListener(archive)
	}

	wsHandler := websocket.NewHandler(sessions, router, messageService, websocket.HandlerConfig{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}, appLogger)

	checks := map[string]shared.HealthCheck{}
	if store.ping != nil {
		checks["database"] = store.ping
	}
	if pinger, ok := limiter.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = pinger.Ping
	}

	// Initialize Gin router
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			appLogger.WithError(err).Warn("Invalid trusted proxies, ignoring")
		}
	}

	// Global middleware
	engine.Use(middleware.RecoveryMiddleware(appLogger))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.NewRelicMiddleware(nrApp))
	engine.Use(middleware.LoggingMiddleware(appLogger))
	engine.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))

	routes.Setup(engine, &routes.Handlers{
		Booking:   shared.NewBookingHandler(bookingService),
		Message:   shared.NewMessageHandler(messageService),
		Webhook:   shared.NewWebhookHandler(paymentService),
		Health:    shared.NewHealthHandler(checks, sessions.Count),
		WebSocket: wsHandler,
	}, routes.Options{
		Auth:           tokenService,
		InternalAPIKey: cfg.Security.InternalAPIKey,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(map[string]interface{}{
			"port":    cfg.App.Port,
			"version": utils.AppVersion,
			"db":      cfg.Database.Driver,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	wsHandler.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
	appLogger.Info("Server exited")
}
