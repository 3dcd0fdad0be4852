package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medikeep/medikeep/internal/api"
	"github.com/medikeep/medikeep/internal/config"
	"github.com/medikeep/medikeep/internal/dailylog"
	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/medikeep/medikeep/internal/patient"
	"github.com/medikeep/medikeep/internal/reminder"
	"github.com/medikeep/medikeep/internal/store"
	"github.com/medikeep/medikeep/internal/tracker"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("medikeep version %s\n", version)
			return
		case "status":
			handleStatusCommand()
			return
		}
	}

	flag.Parse()

	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting medikeep", zap.String("version", version))

	// Load .env files before viper reads the environment
	if err := config.LoadEnvFiles(); err != nil {
		logger.Warn("Failed to load env files", zap.Error(err))
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	meds := medicine.NewStore(st, logger)
	logs := dailylog.NewStore(st, logger)
	patients := patient.NewStore(st, logger)
	trk := tracker.New(meds, logs, logger)

	notifier := reminder.NewLogNotifier(logger)
	scheduler := reminder.NewScheduler(reminder.Config{
		CheckInterval: cfg.Reminders.CheckInterval,
		PerMinute:     cfg.Reminders.PerMinute,
		Burst:         cfg.Reminders.Burst,
	}, st, notifier, logger)

	server := api.New(cfg, meds, logs, patients, trk, scheduler, logger)
	trk.OnChange(func(event string) {
		server.Hub().Broadcast(event)
	})

	// Roll the day over and rebuild the reminder schedule before
	// accepting requests, so a device that slept through midnight
	// starts from consistent state.
	if err := trk.Reconcile(); err != nil {
		logger.Error("Startup reconcile failed", zap.Error(err))
	}

	if cfg.Reminders.Enabled {
		medList, err := meds.List()
		if err != nil {
			logger.Error("Failed to load medicines for reminders", zap.Error(err))
		} else if err := scheduler.SyncAll(medList); err != nil {
			logger.Error("Failed to sync reminders", zap.Error(err))
		}

		if err := scheduler.Start(); err != nil {
			logger.Error("Failed to start reminder scheduler", zap.Error(err))
		} else {
			logger.Info("Reminder scheduler started")
		}
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	scheduler.Stop()

	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
}

func handleStatusCommand() {
	cfg, err := config.Load("", "")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("medikeep Status")
	fmt.Println("===============")
	fmt.Println()
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Data:    %s\n", cfg.Storage.DataDir)
	fmt.Println()
	fmt.Println("Server Configuration:")
	fmt.Printf("  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Printf("  URL: http://localhost:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("Reminders:")
	if cfg.Reminders.Enabled {
		fmt.Printf("  Enabled, checking every %ds\n", cfg.Reminders.CheckInterval)
	} else {
		fmt.Println("  Disabled")
	}
}
