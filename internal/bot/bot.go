// Package bot runs the long-polling Telegram command loop. Its offset,
// mute flag, and pending command survive restarts through the bot_state
// row, checkpointed after every processed update.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"octotrack/internal/alerting"
	"octotrack/internal/config"
	"octotrack/internal/octopus"
	"octotrack/internal/storage"
	"octotrack/internal/version"
)

// DemandFunc fetches the latest live-demand sample for /status replies.
type DemandFunc func(ctx context.Context) (*octopus.DemandReading, error)

// RateFunc looks up the current open unit rate for /status replies.
type RateFunc func(ctx context.Context) (*octopus.RatePeriod, error)

// Options wire the bot's collaborators.
type Options struct {
	ChatID     string
	RetryDelay time.Duration
	Demand     DemandFunc
	Rate       RateFunc
}

// Bot accepts configuration commands over Telegram.
type Bot struct {
	tg      *alerting.TelegramClient
	state   storage.StateStore
	cfg     *config.Config
	updater *config.Updater
	opts    Options
	logger  zerolog.Logger

	st storage.BotState
}

// New constructs the command bot.
func New(cfg *config.Config, updater *config.Updater, tg *alerting.TelegramClient, state storage.StateStore, opts Options, logger zerolog.Logger) *Bot {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	return &Bot{
		tg:      tg,
		state:   state,
		cfg:     cfg,
		updater: updater,
		opts:    opts,
		logger:  logger.With().Str("component", "bot").Logger(),
	}
}

var menu = []alerting.BotCommand{
	{Command: "threshold", Description: "Set alert threshold (watts)"},
	{Command: "report", Description: "Set demand report threshold or disable"},
	{Command: "mute", Description: "Silence all notifications"},
	{Command: "unmute", Description: "Resume notifications"},
	{Command: "status", Description: "Show current config + live demand"},
	{Command: "help", Description: "List available commands"},
}

// Run blocks, polling for commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.tg.SetMyCommands(ctx, menu); err != nil {
		b.logger.Warn().Err(err).Msg("failed to register bot command menu")
	}

	st, err := b.state.BotState(ctx)
	if err != nil {
		return fmt.Errorf("load bot state: %w", err)
	}
	b.st = st

	b.logger.Info().Int64("offset", b.st.UpdateOffset).Msg("bot started, listening for commands")
	b.banner(ctx, fmt.Sprintf("\U0001F419 Bot online (%s)", version.Version))
	defer b.banner(context.Background(), "\U0001F419 Bot shutting down")

	for {
		updates, err := b.tg.GetUpdates(ctx, b.st.UpdateOffset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error().Err(err).Msg("failed to get updates")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.opts.RetryDelay):
			}
			continue
		}

		for _, update := range updates {
			b.st.UpdateOffset = update.UpdateID + 1
			b.processUpdate(ctx, update)
			if err := b.state.SaveBotState(ctx, b.st); err != nil {
				b.logger.Error().Err(err).Msg("failed to checkpoint bot state")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update alerting.Update) {
	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	if chatID != b.opts.ChatID {
		b.logger.Warn().Str("chat_id", chatID).Msg("ignoring message from unauthorized chat")
		return
	}

	text := update.Message.Text
	if text == "" {
		return
	}

	// A bare value answers a command that asked for one.
	if !strings.HasPrefix(text, "/") {
		pending := b.st.PendingCommand
		if pending != "threshold" && pending != "report" {
			return
		}
		b.st.PendingCommand = ""
		text = "/" + pending + " " + text
	}

	b.logger.Info().Str("command", text).Msg("received command")
	if err := b.handleCommand(ctx, text); err != nil {
		b.logger.Error().Err(err).Msg("failed to handle command")
	}
}

func (b *Bot) handleCommand(ctx context.Context, text string) error {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	cmd := strings.ToLower(parts[0])
	// /status@MyBot -> /status
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	b.st.PendingCommand = ""

	switch cmd {
	case "/threshold":
		if arg == "" {
			b.st.PendingCommand = "threshold"
			return b.reply(ctx, "Enter threshold in watts:")
		}
		watts, err := strconv.Atoi(arg)
		if err != nil {
			return b.reply(ctx, "Invalid number. Usage: /threshold <watts>")
		}
		if err := b.updater.SetDemandThreshold(float64(watts)); err != nil {
			return err
		}
		return b.reply(ctx, fmt.Sprintf("Alert threshold set to %dW", watts))

	case "/report":
		if arg == "" {
			b.st.PendingCommand = "report"
			return b.reply(ctx, "Enter threshold in watts (or 'off'):")
		}
		if strings.EqualFold(arg, "off") {
			if err := b.updater.SetReportDemand(false, 0); err != nil {
				return err
			}
			return b.reply(ctx, "Demand reporting disabled")
		}
		watts, err := strconv.Atoi(arg)
		if err != nil {
			return b.reply(ctx, "Invalid value. Usage: /report <watts|off>")
		}
		if err := b.updater.SetReportDemand(true, float64(watts)); err != nil {
			return err
		}
		return b.reply(ctx, fmt.Sprintf("Demand reporting enabled at %dW threshold", watts))

	case "/mute":
		b.st.Muted = true
		return b.reply(ctx, "Notifications muted")

	case "/unmute":
		b.st.Muted = false
		return b.reply(ctx, "Notifications resumed")

	case "/status":
		return b.reply(ctx, b.statusText(ctx))

	case "/help":
		return b.reply(ctx, strings.Join([]string{
			"Available commands:",
			"  /threshold <watts> - set alert threshold",
			"  /report <watts|off> - set demand report threshold or disable",
			"  /mute - silence all notifications",
			"  /unmute - resume notifications",
			"  /status - show current config + live demand",
			"  /help - show this message",
		}, "\n"))
	}

	return b.reply(ctx, "Unknown command. Send /help for usage.")
}

func (b *Bot) statusText(ctx context.Context) string {
	report := "off"
	if b.cfg.Alerting.ReportDemand {
		report = "on"
	}
	muted := "no"
	if b.st.Muted {
		muted = "yes"
	}

	lines := []string{
		"Current config:",
		fmt.Sprintf("  Alert threshold: %.0fW", b.cfg.Alerting.DemandThresholdWatts),
		fmt.Sprintf("  Report demand: %s", report),
		fmt.Sprintf("  Report threshold: %.0fW", b.cfg.Alerting.ReportThresholdWatts),
		fmt.Sprintf("  Muted: %s", muted),
	}

	if b.opts.Demand != nil {
		if reading, err := b.opts.Demand(ctx); err != nil {
			b.logger.Warn().Err(err).Msg("failed to fetch demand for /status")
		} else if reading != nil {
			lines = append(lines, fmt.Sprintf("  Live demand: %.0fW at %s",
				reading.Demand, reading.ReadAt.UTC().Format("2006-01-02 15:04")))
		}
	}

	if b.opts.Rate != nil {
		if rate, err := b.opts.Rate(ctx); err != nil {
			b.logger.Warn().Err(err).Msg("failed to fetch current rate for /status")
		} else if rate != nil {
			lines = append(lines, fmt.Sprintf("  Unit rate: %sp/kWh", rate.ValueIncVAT.StringFixed(2)))
		}
	}

	lines = append(lines, fmt.Sprintf("Version: %s", version.Version))
	return strings.Join(lines, "\n")
}

func (b *Bot) reply(ctx context.Context, msg string) error {
	return b.tg.SendMessage(ctx, b.opts.ChatID, "\U0001F419 "+msg)
}

func (b *Bot) banner(ctx context.Context, msg string) {
	if err := b.tg.SendMessage(ctx, b.opts.ChatID, msg); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn().Err(err).Msg("failed to send bot banner")
	}
}
