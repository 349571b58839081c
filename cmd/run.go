package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"spinwheel/api"
	"spinwheel/bot"
	"spinwheel/config"
	"spinwheel/database"
	"spinwheel/engine"
	"spinwheel/events"
	"spinwheel/infrastructure"
	"spinwheel/realtime"
	"spinwheel/repository"
	"spinwheel/repository/memstore"
	"spinwheel/service"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()
	setupLogging(cfg)

	log.WithField("environment", cfg.Environment).Info("Starting spinwheel...")

	clock := clockwork.NewRealClock()
	eventBus := events.NewBus()
	defer eventBus.Close()

	uowFactory, closeStore, err := openStore(ctx, cfg, eventBus, clock)
	if err != nil {
		return err
	}
	defer closeStore()

	payout, err := payoutPolicy(cfg)
	if err != nil {
		return err
	}

	var rng engine.RandomSource = engine.NewSystemSource()
	if cfg.RandomSeed != 0 {
		rng = engine.NewSeededSource(cfg.RandomSeed)
		log.WithField("seed", cfg.RandomSeed).Warn("Using a fixed random seed, eliminations are reproducible")
	}

	wheelEngine := engine.New(uowFactory, clock, rng, engine.Config{
		MinQuorum:  cfg.MinQuorum,
		TickPeriod: cfg.EliminationTick,
		Payout:     payout,
	})
	defer wheelEngine.Shutdown()

	userService := service.NewUserService(uowFactory, cfg.StartingBalance)
	ledgerService := service.NewLedgerService(uowFactory)
	wheelService := service.NewWheelService(uowFactory, wheelEngine, clock, service.WheelRules{
		MinQuorum:         cfg.MinQuorum,
		AutoStartDelay:    cfg.AutoStartDelay,
		SingleActiveWheel: cfg.SingleActiveWheel,
	})
	log.Info("Services initialized successfully")

	if _, err := userService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminCoins); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	hub := realtime.NewHub()
	realtime.NewBroadcaster(hub).Attach(eventBus)

	if cfg.NATSServers != "" {
		nc, err := infrastructure.ConnectNATS(cfg.NATSServers)
		if err != nil {
			return err
		}
		defer nc.Drain()
		infrastructure.NewNATSPublisher(nc, clock).Attach(eventBus)
	}

	if cfg.DiscordToken != "" {
		discordBot, err := bot.New(bot.Config{
			Token:     cfg.DiscordToken,
			ChannelID: cfg.DiscordChannelID,
		}, wheelService, userService, eventBus)
		if err != nil {
			return fmt.Errorf("failed to initialize Discord bot: %w", err)
		}
		defer func() {
			if err := discordBot.Close(); err != nil {
				log.WithError(err).Error("Error closing Discord bot")
			}
		}()
	}

	// timers are re-armed only after every subscriber is attached
	if err := wheelEngine.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover wheels: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.Dependencies{Wheels: wheelService, Users: userService, Ledger: ledgerService, Hub: hub}, !cfg.IsDevelopment()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	log.Info("Shutdown completed")
	return nil
}

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	if cfg.IsDevelopment() {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return
	}
	log.SetFormatter(&log.JSONFormatter{})
}

// openStore returns the unit of work factory for the configured backend and its close func
func openStore(ctx context.Context, cfg *config.Config, eventBus *events.Bus, clock clockwork.Clock) (service.UnitOfWorkFactory, func(), error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		log.Warn("Using the in-memory store, state is lost on restart")
		return memstore.NewStore(eventBus, clock), func() {}, nil
	}

	databaseURL := cfg.DatabaseURL
	if cfg.DatabaseName != "" {
		databaseURL = database.ConstructDatabaseURL(cfg.DatabaseURL, cfg.DatabaseName)
	}

	if err := database.RunMigrationsWithURL(databaseURL); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repository.NewUnitOfWorkFactory(db, eventBus), db.Close, nil
}

func payoutPolicy(cfg *config.Config) (service.PayoutPolicy, error) {
	if cfg.PayoutMode == config.PayoutModePool {
		policy, err := service.PoolSplitPayout(cfg.WinnerPoolPercent, cfg.AdminPoolPercent)
		if err != nil {
			return nil, fmt.Errorf("invalid pool payout: %w", err)
		}
		return policy, nil
	}
	return service.FixedPayout(cfg.FixedPayout), nil
}
