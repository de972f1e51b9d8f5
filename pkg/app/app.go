package app

import (
	"context"
	"fmt"
	"time"

	"ratchet/notification/telegram"
	"ratchet/pkg/engine"
	"ratchet/pkg/exchange"
	binanceadapter "ratchet/pkg/exchange/binance"
	"ratchet/store"
	"ratchet/utilities"
	"ratchet/web"
)

// App is the composition root: it owns the shared collaborators (exchange
// adapter, persistence store, notifier) and the per-user engine registry.
type App struct {
	config   *utilities.AppConfig
	logger   *utilities.Logger
	store    *store.SQLiteStore
	exchange exchange.Exchange
	notifier *telegram.Client
	registry *engine.Registry
}

// Engines exposes the registry to the web layer.
func (a *App) Engines() *engine.Registry { return a.registry }

// Notifications exposes the Telegram client so the web layer can bind chats.
func (a *App) Notifications() *telegram.Client { return a.notifier }

// GetConfig returns the loaded application configuration.
func (a *App) GetConfig() utilities.AppConfig { return *a.config }

// Logger returns the application logger.
func (a *App) Logger() *utilities.Logger { return a.logger }

// Run wires the application together and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *utilities.AppConfig, logger *utilities.Logger) error {
	if cfg.Binance.APIKey == "" || cfg.Binance.APISecret == "" {
		return fmt.Errorf("binance API credentials are not configured")
	}

	dbPath := cfg.DB.DBPath
	if dbPath == "" {
		dbPath = "ratchet.db"
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store at %s: %w", dbPath, err)
	}
	defer st.Close()

	if cfg.DB.TradeRetentionDays > 0 {
		interval := time.Duration(cfg.DB.CleanupIntervalHours) * time.Hour
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		st.StartScheduledCleanup(interval, cfg.DB.TradeRetentionDays)
	}

	adapter := binanceadapter.NewAdapter(cfg.Binance, logger)
	notifier := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.DefaultChatID, logger)

	a := &App{
		config:   cfg,
		logger:   logger,
		store:    st,
		exchange: adapter,
		notifier: notifier,
	}
	a.registry = engine.NewRegistry(func(userID string) (*engine.Engine, error) {
		return engine.NewEngine(userID, *cfg, a.exchange, st, notifier, logger)
	}, logger)
	defer a.registry.Shutdown()

	// Sessions that were RUNNING before the restart resume as soon as their
	// engine exists, so the shared single-operator session is built eagerly.
	if _, err := a.registry.Get("default"); err != nil {
		logger.LogWarn("app: default session unavailable at startup: %v", err)
	}

	web.StartWebServer(ctx, a)

	logger.LogInfo("%s %s is up (testnet=%v)", cfg.AppName, cfg.Version, cfg.Binance.Testnet)
	<-ctx.Done()
	logger.LogInfo("app: shutdown requested, draining sessions...")
	return nil
}
