package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"octotrack/internal/bot"
	"octotrack/internal/octopus"
	"octotrack/internal/scheduler"
	"octotrack/internal/storage"
)

// Demand runs a single live-demand check and raises threshold alerts.
func (a *App) Demand(ctx context.Context) error {
	if a.Config.Octopus.APIKey == "" {
		return errors.New("octopus.api_key is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.newService(store).CheckDemand(ctx)
}

// Watch polls live demand on an aligned interval until interrupted, for
// hosts without a cron tick.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store)
	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Watch.Interval,
		AlignToStart: true,
		StartupDelay: a.Config.Watch.StartupDelay,
		TickTimeout:  a.Config.Watch.TickTimeout,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Watch.Interval).Msg("starting demand watch")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return svc.CheckDemand(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Bot runs the long-polling Telegram command bot.
func (a *App) Bot(ctx context.Context) error {
	tg := a.Config.Alerting.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		return errors.New("alerting.telegram.bot_token and alerting.telegram.chat_id are required")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client := a.newClient()
	demand := func(ctx context.Context) (*octopus.DemandReading, error) {
		token, err := client.ObtainToken(ctx)
		if err != nil {
			return nil, err
		}
		return client.LiveDemand(ctx, token, a.Config.Octopus.DeviceID)
	}

	b := bot.New(a.Config, a.Updater, a.newTelegram(), store, bot.Options{
		ChatID:     tg.ChatID,
		RetryDelay: a.Config.Bot.RetryDelay,
		Demand:     demand,
		Rate: func(ctx context.Context) (*octopus.RatePeriod, error) {
			return store.CurrentRate(ctx, storage.KindUnit)
		},
	}, a.Logger)

	err = b.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
