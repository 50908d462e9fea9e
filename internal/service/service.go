package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"octotrack/internal/alerting"
	"octotrack/internal/config"
	"octotrack/internal/octopus"
	"octotrack/internal/storage"
)

// DataClient is the remote source boundary the orchestrator drives.
type DataClient interface {
	Consumption(ctx context.Context, mpan, serial string, from, to time.Time) ([]octopus.ConsumptionReading, error)
	UnitRates(ctx context.Context, tariffCode string, from, to time.Time) ([]octopus.RatePeriod, error)
	StandingCharges(ctx context.Context, tariffCode string, from, to time.Time) ([]octopus.RatePeriod, error)
	ObtainToken(ctx context.Context) (string, error)
	LiveDemand(ctx context.Context, token, deviceID string) (*octopus.DemandReading, error)
}

// PartialSyncError reports resources whose fetch-or-store failed while the
// rest of the cycle carried on.
type PartialSyncError struct {
	Failed map[string]error
}

func (e *PartialSyncError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return "partial sync failure: " + strings.Join(parts, "; ")
}

// ResourceResult summarises one resource's outcome within a sync cycle.
type ResourceResult struct {
	Resource string
	Records  int
	From     time.Time
	To       time.Time
}

// Report is the outcome of a full sync cycle.
type Report struct {
	Results []ResourceResult
}

// SyncOptions scope a sync cycle's window. With none set, each resource
// resumes from its own ledger entry (default lookback when absent).
type SyncOptions struct {
	From *time.Time
	To   *time.Time
	Days int
}

// Service orchestrates fetching, persistence, and alerting. It owns no
// algorithmic logic beyond sequencing and partial-failure isolation.
type Service struct {
	client   DataClient
	store    storage.TimeSeriesStore
	state    storage.StateStore
	notifier alerting.Notifier
	logger   zerolog.Logger
	cfg      *config.Config

	locker  storage.AdvisoryLocker
	lockKey int64

	now func() time.Time
}

// New constructs the sync service.
func New(cfg *config.Config, client DataClient, store storage.TimeSeriesStore, state storage.StateStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	svc := &Service{
		client:   client,
		store:    store,
		state:    state,
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
		cfg:      cfg,
		lockKey:  cfg.Database.AdvisoryLockKey,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if locker, ok := store.(storage.AdvisoryLocker); ok {
		svc.locker = locker
	}
	return svc
}

// RunSync drives one cycle: per resource fetch -> upsert -> ledger advance
// as a unit, then one usage-alert evaluation. A failed resource skips its
// ledger advance and is reported without blocking the others.
func (s *Service) RunSync(ctx context.Context, opts SyncOptions) (*Report, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.logger.Warn().Msg("another sync holds the advisory lock, skipping cycle")
		return &Report{}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	now := s.now()
	to := now
	if opts.To != nil {
		to = opts.To.UTC()
	}

	report := &Report{}
	failed := make(map[string]error)

	resources := []struct {
		name string
		run  func(from time.Time) (int, error)
	}{
		{storage.ResourceConsumption, func(from time.Time) (int, error) {
			records, err := s.client.Consumption(ctx, s.cfg.Octopus.MPAN, s.cfg.Octopus.Serial, from, to)
			if err != nil {
				return 0, err
			}
			return s.store.UpsertConsumption(ctx, records, to)
		}},
		{storage.ResourceUnitRates, func(from time.Time) (int, error) {
			records, err := s.client.UnitRates(ctx, s.cfg.Octopus.TariffCode, from, to)
			if err != nil {
				return 0, err
			}
			return s.store.UpsertRates(ctx, storage.KindUnit, records, to)
		}},
		{storage.ResourceStandingCharges, func(from time.Time) (int, error) {
			records, err := s.client.StandingCharges(ctx, s.cfg.Octopus.TariffCode, from, to)
			if err != nil {
				return 0, err
			}
			return s.store.UpsertRates(ctx, storage.KindStanding, records, to)
		}},
	}

	for _, resource := range resources {
		from, err := s.resolveFrom(ctx, resource.name, opts, now)
		if err != nil {
			failed[resource.name] = err
			continue
		}

		count, err := resource.run(from)
		if err != nil {
			s.logger.Error().Err(err).Str("resource", resource.name).Msg("resource sync failed")
			failed[resource.name] = err
			continue
		}

		s.logger.Info().Str("resource", resource.name).
			Int("records", count).
			Time("from", from).Time("to", to).
			Msg("resource synced")
		report.Results = append(report.Results, ResourceResult{Resource: resource.name, Records: count, From: from, To: to})
	}

	if err := s.EvaluateUsageAlert(ctx); err != nil {
		s.logger.Error().Err(err).Msg("usage alert evaluation failed")
		if len(failed) == 0 {
			return report, err
		}
	}

	if len(failed) > 0 {
		return report, &PartialSyncError{Failed: failed}
	}
	return report, nil
}

// resolveFrom picks the window start: explicit bound, day count, ledger
// resume, then the configured default lookback.
func (s *Service) resolveFrom(ctx context.Context, resource string, opts SyncOptions, now time.Time) (time.Time, error) {
	if opts.From != nil {
		return opts.From.UTC(), nil
	}
	if opts.Days > 0 {
		return daysAgo(now, opts.Days), nil
	}

	through, ok, err := s.store.LastSynced(ctx, resource)
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync ledger: %w", err)
	}
	if ok {
		s.logger.Debug().Str("resource", resource).Time("from", through).Msg("resuming from ledger")
		return through, nil
	}
	return daysAgo(now, s.cfg.Sync.LookbackDays), nil
}

// EvaluateUsageAlert applies the daily-usage threshold rule over the two
// most recent complete days. State is persisted before the notification is
// attempted, so delivery failure cannot duplicate an alert.
func (s *Service) EvaluateUsageAlert(ctx context.Context) error {
	if !s.cfg.Alerting.Enabled {
		return nil
	}

	days, err := s.store.RecentCompleteDays(ctx, s.now(), 2)
	if err != nil {
		return fmt.Errorf("load recent days: %w", err)
	}
	if len(days) < 2 {
		s.logger.Debug().Int("complete_days", len(days)).Msg("not enough complete days for usage alert")
		return nil
	}

	newest, older := days[0], days[1]
	threshold := decimal.NewFromFloat(s.cfg.Alerting.UsageThresholdKWh)

	prev := alerting.DirectionNone
	if state, ok, err := s.state.AlertState(ctx, storage.ChannelUsage); err != nil {
		return fmt.Errorf("load usage alert state: %w", err)
	} else if ok {
		prev = alerting.Direction(state.Direction)
	}

	observed := alerting.ClassifyDaily(older.TotalKWh, newest.TotalKWh, threshold)
	next, emit := alerting.Transition(prev, observed)
	if !emit {
		s.logger.Debug().Str("direction", string(next)).Msg("usage alert suppressed")
		return nil
	}

	if err := s.state.SaveAlertState(ctx, storage.ChannelUsage, storage.AlertState{
		Direction: string(next),
		LastValue: newest.TotalKWh,
		Threshold: threshold,
		AlertedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("persist usage alert state: %w", err)
	}

	if s.notifier != nil {
		text := alerting.FormatUsageAlert(next, newest.TotalKWh, threshold, newest.Day)
		if err := s.notifier.Notify(ctx, text); err != nil {
			// state already advanced: at-most-once delivery
			s.logger.Error().Err(err).Msg("failed to dispatch usage alert")
		}
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func daysAgo(now time.Time, n int) time.Time {
	return now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -n)
}
