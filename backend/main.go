package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/config"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/handlers"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ledger"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/models"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/services"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

func main() {
	flags := pflag.NewFlagSet("cyberledger", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 0. Initialize Logger
	if err := system.InitLogger(system.Options{
		Dir:   cfg.Log.Dir,
		Level: system.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	}); err != nil {
		log.Printf("Warning: Could not initialize file logger: %v", err)
	}
	defer system.Close()

	system.Info("Dashboard backend starting...")

	// 1. Setup Database
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		system.Error("Failed to connect to database: %v", err)
		log.Fatal("Failed to connect to database:", err)
	}
	system.Info("Database connected: %s", cfg.Database.Path)

	// WAL keeps background ledger updates from locking out request writes
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	} else {
		system.Info("SQLite WAL mode enabled")
	}

	if err := db.AutoMigrate(&models.Prediction{}, &models.Admin{}); err != nil {
		system.Error("Database migration failed: %v", err)
		log.Fatalf("CRITICAL: Database migration failed. Application cannot start: %v", err)
	}
	system.Info("Database migration completed successfully")

	if err := handlers.EnsureBootstrapAdmin(db, cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword); err != nil {
		log.Fatalf("CRITICAL: %v", err)
	}

	// 2. Load Model
	predictor, err := ml.LoadPredictor(cfg.Artifacts.Dir)
	if err != nil {
		system.Error("Failed to load model artifacts from %s: %v", cfg.Artifacts.Dir, err)
		log.Fatalf("CRITICAL: model artifacts unavailable, run the trainer first: %v", err)
	}
	if m := predictor.Metrics(); m != nil {
		system.Info("Model %s loaded (%d trees, accuracy %.4f)", predictor.Fingerprint(), predictor.Trees(), m.Accuracy)
	}

	// 3. Connect Ledger
	lc := connectLedger(cfg)

	// 4. Setup Services
	geoipService := services.NewGeoIPService(cfg.GeoIP.DatabasePath)
	defer geoipService.Close()

	webhookService := services.NewWebhookService(cfg.Webhook.DiscordURL)
	if webhookService.IsEnabled() {
		system.Info("Discord webhook configured")
	}

	notifiers := services.Notifiers{webhookService}
	var kafkaPublisher *services.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err = services.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			system.Warn("Kafka publishing disabled: %v", err)
		} else {
			notifiers = append(notifiers, kafkaPublisher)
			system.Info("Publishing detections to kafka topic %s", cfg.Kafka.Topic)
		}
	}

	var healthMonitor *services.HealthMonitor
	var reconciler *services.Reconciler
	if lc.Enabled() {
		healthMonitor = services.NewHealthMonitor(lc, webhookService, cfg.Ledger.HealthInterval)
		healthMonitor.Start()

		reconciler = services.NewReconciler(db, lc, cfg.Ledger.ReconcileInterval, cfg.Ledger.ReconcileMaxTries, lc.RequestTimeout())
		reconciler.Start()
	}

	var dailyReporter *services.DailyReporter
	if cfg.Webhook.DailyReport && webhookService.IsEnabled() {
		dailyReporter = services.NewDailyReporter(db, webhookService)
		dailyReporter.Start()
	}

	// 5. Setup Handlers
	h := handlers.NewHandler(db, predictor, lc, cfg)
	h.GeoIP = geoipService
	h.Health = healthMonitor
	h.Webhook = webhookService
	h.Notifier = notifiers

	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
	})

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))

	app.Use(cors.New())

	handlers.Register(app, h)

	// 6. Serve Static Files (Frontend)
	frontendPath := cfg.Server.FrontendDir
	app.Static("/", frontendPath, fiber.Static{
		ByteRange: true,
		Browse:    false,
		MaxAge:    3600,
	})

	// SPA fallback
	app.Get("/*", func(c *fiber.Ctx) error {
		return c.SendFile(filepath.Join(frontendPath, "index.html"))
	})

	handlers.AddEvent("success", "Dashboard backend started")

	// Graceful Shutdown Handling
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		system.Info("Gracefully shutting down...")

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			system.Warn("HTTP shutdown: %v", err)
		}
	}()

	system.Info("Server starting on %s", cfg.Server.Listen)
	if err := app.Listen(cfg.Server.Listen); err != nil {
		system.Error("Server stopped: %v", err)
	}

	// Let in-flight ledger writes land before the services go away
	h.Wait()

	if reconciler != nil {
		reconciler.Stop()
	}
	if healthMonitor != nil {
		healthMonitor.Stop()
	}
	if dailyReporter != nil {
		dailyReporter.Stop()
	}
	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}

	system.Info("Shutdown complete")
}

// connectLedger builds the ledger client. Missing or invalid settings leave
// the dashboard running with the ledger disabled.
func connectLedger(cfg *config.Config) *ledger.Client {
	if !cfg.Ledger.Enabled {
		system.Info("Ledger disabled by configuration")
		return ledger.Disabled("disabled by configuration")
	}

	if err := cfg.LedgerReady(); err != nil {
		if errors.Is(err, config.ErrMissingPrivateKey) {
			system.Warn("Ledger disabled: set CYBERLEDGER_LEDGER_PRIVATE_KEY or ledger.private_key_file")
		} else {
			system.Warn("Ledger disabled: %v", err)
		}
		return ledger.Disabled(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lc, err := ledger.Dial(ctx, cfg.Ledger)
	if err != nil {
		system.Error("Ledger disabled: %v", err)
		return ledger.Disabled(err.Error())
	}

	if err := lc.Ping(ctx); err != nil {
		system.Warn("Ledger at %s not reachable yet: %v", cfg.Ledger.RPCURL, err)
	} else {
		system.Info("Ledger connected: %s (account %s, contract %s)", cfg.Ledger.RPCURL, lc.Account().Hex(), lc.Contract().Hex())
	}

	return lc
}
