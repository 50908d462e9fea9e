package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"octotrack/internal/alerting"
	"octotrack/internal/octopus"
	"octotrack/internal/storage"
)

// CheckDemand polls one live-demand sample and applies the directional
// alert rule against the watt threshold. Safe for a one-minute cron tick.
func (s *Service) CheckDemand(ctx context.Context) error {
	deviceID := s.cfg.Octopus.DeviceID
	if deviceID == "" {
		s.logger.Debug().Msg("no device id configured, skipping live demand check")
		return nil
	}

	token, err := s.obtainToken(ctx)
	if err != nil {
		return err
	}

	reading, err := s.client.LiveDemand(ctx, token, deviceID)
	if err != nil {
		return fmt.Errorf("fetch live demand: %w", err)
	}
	if reading == nil {
		s.logger.Debug().Msg("no live telemetry available")
		return nil
	}

	s.logger.Info().Float64("demand_w", reading.Demand).Time("read_at", reading.ReadAt).Msg("live demand sample")

	botState, err := s.state.BotState(ctx)
	if err != nil {
		return fmt.Errorf("load bot state: %w", err)
	}
	if botState.Muted {
		s.logger.Info().Msg("notifications muted, skipping demand alerts")
		return nil
	}

	if s.notifier != nil && s.cfg.Alerting.ReportDemand && reading.Demand >= s.cfg.Alerting.ReportThresholdWatts {
		if err := s.notifier.Notify(ctx, alerting.FormatDemandReport(reading.Demand, reading.ReadAt)); err != nil {
			s.logger.Error().Err(err).Msg("failed to send demand report")
		}
	}

	prev := alerting.DirectionNone
	if state, ok, err := s.state.AlertState(ctx, storage.ChannelDemand); err != nil {
		return fmt.Errorf("load demand alert state: %w", err)
	} else if ok {
		prev = alerting.Direction(state.Direction)
	}

	threshold := s.cfg.Alerting.DemandThresholdWatts
	observed := alerting.ClassifySample(reading.Demand, threshold)
	next, emit := alerting.Transition(prev, observed)
	if !emit {
		s.logger.Debug().Str("direction", string(next)).Msg("demand alert suppressed")
		return nil
	}

	if err := s.state.SaveAlertState(ctx, storage.ChannelDemand, storage.AlertState{
		Direction: string(next),
		LastValue: decimal.NewFromFloat(reading.Demand),
		Threshold: decimal.NewFromFloat(threshold),
		AlertedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("persist demand alert state: %w", err)
	}

	if s.notifier != nil {
		text := alerting.FormatDemandAlert(next, reading.Demand, threshold, reading.ReadAt)
		if err := s.notifier.Notify(ctx, text); err != nil {
			// state already advanced: at-most-once delivery
			s.logger.Error().Err(err).Msg("failed to dispatch demand alert")
		}
	}
	return nil
}

// obtainToken exchanges the API key for a bearer token, retrying once for
// transient faults. Auth rejections are surfaced immediately.
func (s *Service) obtainToken(ctx context.Context) (string, error) {
	token, err := s.client.ObtainToken(ctx)
	if err == nil {
		return token, nil
	}
	if errors.Is(err, octopus.ErrAuth) {
		return "", fmt.Errorf("obtain kraken token: %w", err)
	}

	s.logger.Warn().Err(err).Msg("token exchange failed, retrying once")
	token, retryErr := s.client.ObtainToken(ctx)
	if retryErr != nil {
		return "", fmt.Errorf("obtain kraken token: %w", retryErr)
	}
	return token, nil
}
