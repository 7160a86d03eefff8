package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// 1. Environment Check
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		log.Warn().Msg("API_SECRET is missing. Requests will fail auth.")
	}

	// 2. Store
	var store Store
	if os.Getenv("STORE") == "memory" {
		log.Warn().Msg("Using in-memory store; state is lost on restart")
		store = NewMemStore()
	} else {
		db := ConnectDB()
		defer db.Close()
		if err := InitializeSchema(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database schema")
		}
		store = NewPostgresStore(db)
	}

	// 3. Optional tracing
	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		tp, err := InitTracerProvider(context.Background(), "stockhold", endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracer provider")
		}
		defer tp.Shutdown(context.Background())
	}

	// 4. Optional redis (sweep advisory lock)
	var rdb *redis.Client
	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
	}

	manager := NewReservationManager(store, log.Logger)
	sweeper := NewSweeper(store, log.Logger, rdb)

	// 5. Background workers
	ctx := context.Background()
	go StartTrafficMonitor()
	go sweeper.Run(ctx, envDuration("SWEEP_INTERVAL", 5*time.Second))

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := getEnv("KAFKA_TOPIC", "stock-ledger")
		notifier := NewLedgerNotifier(store, strings.Split(brokers, ","), topic, log.Logger)
		go notifier.Run(ctx, 1*time.Second)
	}

	// 6. Web server
	app := newApp(&Handler{Manager: manager, Sweeper: sweeper}, secret)

	port := getEnv("PORT", "8080")
	log.Info().Str("port", port).Msg("Inventory reservation API live")
	log.Fatal().Err(app.Listen(":" + port)).Msg("server stopped")
}

func newApp(h *Handler, secret string) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())
	app.Use(recover.New())

	// Metrics stay outside the authenticated group for the scraper.
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", AuthMiddleware(secret), BotDefenseMiddleware())

	api.Post("/inventory/sync", h.SyncInventory) // Setup / adjust stock
	api.Get("/inventory/:sku", h.GetProduct)
	api.Get("/inventory/:sku/ledger", h.GetLedger) // Audit, read-only

	api.Post("/reservations", h.CreateReservation)
	api.Post("/reservations/:lineItemID/extend", h.ExtendReservation)
	api.Post("/reservations/:lineItemID/commit", h.CommitReservation)
	api.Delete("/reservations/:lineItemID", h.CancelReservation)

	api.Post("/sweep", h.SweepNow) // External job trigger

	return app
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
	}
	return fallback
}
