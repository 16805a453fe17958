package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier-platform/internal/api"
	"courier-platform/internal/config"
	"courier-platform/internal/modules/chat"
	"courier-platform/internal/modules/deliveries"
	"courier-platform/internal/modules/notifications"
	"courier-platform/internal/modules/users"
	"courier-platform/internal/realtime"
	"courier-platform/internal/storage"
	"courier-platform/pkg/email"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// 1. --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	commissionRate, baseFare, perKmRate, defaultDistance, err := cfg.Pricing()
	if err != nil {
		log.Fatalf("Invalid pricing configuration: %v", err)
	}
	pricing := deliveries.Pricing{
		CommissionRate:    commissionRate,
		BaseFare:          baseFare,
		PerKmRate:         perKmRate,
		DefaultDistanceKm: defaultDistance,
		DefaultLat:        cfg.DefaultLat,
		DefaultLng:        cfg.DefaultLng,
	}

	e := echo.New()

	// 2. --- Middleware ---
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:5173", cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// 3. --- Storage ---
	// With DATABASE_URL set the repositories run on PostgreSQL; without it
	// everything lives in process memory, which is enough for development.
	var (
		txRunner     storage.TxRunner
		userRepo     users.RepositoryInterface
		deliveryRepo deliveries.RepositoryInterface
		chatRepo     chat.RepositoryInterface
		notifRepo    notifications.RepositoryInterface
	)
	if cfg.DatabaseURL != "" {
		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to parse database configuration: %v", err)
		}
		dbPool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
		if err != nil {
			log.Fatalf("Unable to create connection pool: %v", err)
		}
		defer dbPool.Close()
		if err := dbPool.Ping(context.Background()); err != nil {
			log.Fatalf("Unable to ping database: %v", err)
		}
		e.Logger.Info("Successfully connected to the database!")

		db := storage.NewDB(dbPool)
		txRunner = db
		userRepo = users.NewRepository(db)
		deliveryRepo = deliveries.NewRepository(db)
		chatRepo = chat.NewRepository(db)
		notifRepo = notifications.NewRepository(db)
	} else {
		e.Logger.Warn("DATABASE_URL not set; using in-memory storage")
		txRunner = storage.NewMemoryTxRunner()
		userRepo = users.NewMemoryRepository()
		deliveryRepo = deliveries.NewMemoryRepository()
		chatRepo = chat.NewMemoryRepository()
		notifRepo = notifications.NewMemoryRepository()
	}

	// 4. --- Realtime Bus ---
	var bus realtime.Bus
	if cfg.AMQPURL != "" {
		amqpBus, err := realtime.NewAmqpBus(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("Unable to connect to the message broker: %v", err)
		}
		defer amqpBus.Close()
		bus = amqpBus
	} else {
		bus = realtime.NewMemoryBus()
	}

	// 5. --- Email Channel ---
	var emailer email.ServiceInterface
	if cfg.AWSRegion != "" && cfg.EmailFrom != "" {
		sender, err := email.NewSESV2Sender(context.Background(), cfg.AWSRegion, cfg.EmailFrom)
		if err != nil {
			log.Fatalf("Unable to initialize the email sender: %v", err)
		}
		emailer = sender
	}
	templates, err := email.NewTemplateManager()
	if err != nil {
		log.Fatalf("Unable to parse email templates: %v", err)
	}

	// 6. --- Dependency Injection (Wiring everything up) ---
	notifService := notifications.NewService(notifRepo, userRepo, bus, emailer, templates, cfg.NotificationRetentionDays)
	notifHandler := notifications.NewHandler(notifService, bus)

	chatService := chat.NewService(chatRepo, deliveries.NewPartyLookup(deliveryRepo), userRepo, notifService, bus, txRunner)
	chatHandler := chat.NewHandler(chatService, bus)

	deliveryService := deliveries.NewService(deliveryRepo, userRepo, chatService, notifService, bus, txRunner, pricing)
	deliveryHandler := deliveries.NewHandler(deliveryService, bus)

	userService := users.NewService(userRepo, bus, txRunner, cfg.JWTSecret)
	userHandler := users.NewHandler(userService)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	notifService.StartSweeper(sweepCtx, time.Hour)

	// 7. --- Routes ---
	api.SetupRoutes(e,
		userHandler,
		deliveryHandler,
		chatHandler,
		notifHandler,
		cfg.JWTSecret,
	)

	// 8. --- Start Server with graceful shutdown logic ---
	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server an error occurred:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Server exiting")
}
