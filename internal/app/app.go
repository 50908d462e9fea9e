package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"octotrack/internal/alerting"
	"octotrack/internal/config"
	"octotrack/internal/octopus"
	"octotrack/internal/service"
	"octotrack/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Updater *config.Updater
	Logger  zerolog.Logger
	Quiet   bool
	JSON    bool
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, updater *config.Updater, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Updater: updater,
		Logger:  logger.With().Str("component", "app").Logger(),
	}
}

func (a *App) newClient() *octopus.Client {
	return octopus.NewClient(octopus.Options{
		BaseURL:    a.Config.Octopus.BaseURL,
		GraphQLURL: a.Config.Octopus.GraphQLURL,
		APIKey:     a.Config.Octopus.APIKey,
		PageSize:   a.Config.Octopus.PageSize,
		Timeout:    a.Config.Octopus.RequestTimeout,
		UserAgent:  a.Config.Octopus.UserAgent,
	}, a.Logger)
}

func (a *App) newTelegram() *alerting.TelegramClient {
	tg := a.Config.Alerting.Telegram
	return alerting.NewTelegramClient(alerting.TelegramOptions{
		BotToken:    tg.BotToken,
		APIBase:     tg.APIBase,
		Timeout:     10 * time.Second,
		PollTimeout: a.Config.Bot.PollTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(a.newTelegram(), a.Config.Alerting.Telegram.ChatID, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) *service.Service {
	return service.New(a.Config, a.newClient(), store, store, a.newNotifier(), a.Logger)
}

// UsageOptions configure the usage and rates queries.
type UsageOptions struct {
	Days  int
	Group string
}

// CostOptions configure the cost query.
type CostOptions struct {
	Days  int
	Group string
}

// ExportOptions configure the export command.
type ExportOptions struct {
	OutputPath string
	CSVPath    string
	PNGPath    string
	MaxPoints  int
}

// SyncOptions configure the sync command.
type SyncOptions struct {
	Days int
	From *time.Time
	To   *time.Time
}
