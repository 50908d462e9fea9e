package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"octotrack/internal/octopus"
)

const (
	upsertConsumptionSQL = `INSERT INTO consumption (interval_start, interval_end, kwh)
    VALUES ($1, $2, $3)
    ON CONFLICT (interval_start) DO UPDATE
    SET interval_end = EXCLUDED.interval_end,
        kwh          = EXCLUDED.kwh;`

	upsertRateSQL = `INSERT INTO tariff_rates (valid_from, kind, valid_to, value_exc_vat, value_inc_vat)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (valid_from, kind) DO UPDATE
    SET valid_to      = EXCLUDED.valid_to,
        value_exc_vat = EXCLUDED.value_exc_vat,
        value_inc_vat = EXCLUDED.value_inc_vat;`

	advanceLedgerSQL = `INSERT INTO sync_ledger (resource, synced_through, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (resource) DO UPDATE
    SET synced_through = EXCLUDED.synced_through,
        updated_at     = now();`

	lastSyncedSQL = `SELECT synced_through FROM sync_ledger WHERE resource = $1;`

	listLedgerSQL = `SELECT resource, synced_through, updated_at FROM sync_ledger ORDER BY resource;`

	listConsumptionSQL = `SELECT interval_start, interval_end, kwh
    FROM consumption
    WHERE interval_start >= $1
      AND interval_start < $2
    ORDER BY interval_start;`

	dailyTotalsSQL = `SELECT date_trunc('day', interval_start) AS day,
           SUM(kwh) AS total_kwh,
           COUNT(*) AS readings
    FROM consumption
    WHERE interval_start >= $1
      AND interval_start < $2
    GROUP BY day
    ORDER BY day;`

	recentCompleteDaysSQL = `SELECT date_trunc('day', interval_start) AS day,
           SUM(kwh) AS total_kwh,
           COUNT(*) AS readings
    FROM consumption
    WHERE interval_start < $1
    GROUP BY day
    ORDER BY day DESC
    LIMIT $2;`

	listRatesSQL = `SELECT valid_from, valid_to, value_exc_vat, value_inc_vat
    FROM tariff_rates
    WHERE kind = $1
      AND valid_from < $2
      AND (valid_to IS NULL OR valid_to > $3)
    ORDER BY valid_from;`

	currentRateSQL = `SELECT valid_from, valid_to, value_exc_vat, value_inc_vat
    FROM tariff_rates
    WHERE kind = $1 AND valid_to IS NULL
    ORDER BY valid_from DESC
    LIMIT 1;`

	getAlertStateSQL = `SELECT direction, last_value, threshold, alerted_at
    FROM alert_state WHERE channel = $1;`

	saveAlertStateSQL = `INSERT INTO alert_state (channel, direction, last_value, threshold, alerted_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (channel) DO UPDATE
    SET direction  = EXCLUDED.direction,
        last_value = EXCLUDED.last_value,
        threshold  = EXCLUDED.threshold,
        alerted_at = EXCLUDED.alerted_at;`

	getBotStateSQL = `SELECT muted, pending_command, update_offset FROM bot_state WHERE id = 1;`

	saveBotStateSQL = `INSERT INTO bot_state (id, muted, pending_command, update_offset)
    VALUES (1, $1, $2, $3)
    ON CONFLICT (id) DO UPDATE
    SET muted           = EXCLUDED.muted,
        pending_command = EXCLUDED.pending_command,
        update_offset   = EXCLUDED.update_offset;`
)

// TimeSeriesStore defines the sync and query operations over the stored
// series. Upserts advance the resource's ledger entry in the same
// transaction, making the ledger the durability boundary for a cycle.
type TimeSeriesStore interface {
	UpsertConsumption(ctx context.Context, records []octopus.ConsumptionReading, through time.Time) (int, error)
	UpsertRates(ctx context.Context, kind string, records []octopus.RatePeriod, through time.Time) (int, error)
	LastSynced(ctx context.Context, resource string) (time.Time, bool, error)
	ListConsumption(ctx context.Context, from, to time.Time) ([]octopus.ConsumptionReading, error)
	ListRates(ctx context.Context, kind string, from, to time.Time) ([]octopus.RatePeriod, error)
	CurrentRate(ctx context.Context, kind string) (*octopus.RatePeriod, error)
	DailyTotals(ctx context.Context, from, to time.Time) ([]DailyUsage, error)
	RecentCompleteDays(ctx context.Context, asOf time.Time, limit int) ([]DailyUsage, error)
}

// StateStore persists alert dedup state and the bot's cross-restart state.
type StateStore interface {
	AlertState(ctx context.Context, channel string) (AlertState, bool, error)
	SaveAlertState(ctx context.Context, channel string, state AlertState) error
	BotState(ctx context.Context) (BotState, error)
	SaveBotState(ctx context.Context, state BotState) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// ledgerResource maps a rate kind to its ledger resource name.
func ledgerResource(kind string) string {
	if kind == KindStanding {
		return ResourceStandingCharges
	}
	return ResourceUnitRates
}

// UpsertConsumption stores a fetched window of readings and advances the
// consumption ledger, all-or-nothing.
func (s *Store) UpsertConsumption(ctx context.Context, records []octopus.ConsumptionReading, through time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin consumption upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertConsumptionSQL, r.IntervalStart, r.IntervalEnd, r.KWh.String())
	}
	batch.Queue(advanceLedgerSQL, ResourceConsumption, through)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert consumption: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit consumption upsert: %w", err)
	}
	return len(records), nil
}

// UpsertRates stores a fetched window of rate periods for one kind and
// advances the matching ledger, all-or-nothing.
func (s *Store) UpsertRates(ctx context.Context, kind string, records []octopus.RatePeriod, through time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin rate upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		var validTo any
		if r.ValidTo != nil {
			validTo = *r.ValidTo
		}
		batch.Queue(upsertRateSQL, r.ValidFrom, kind, validTo, r.ValueExcVAT.String(), r.ValueIncVAT.String())
	}
	batch.Queue(advanceLedgerSQL, ledgerResource(kind), through)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert %s rates: %w", kind, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit rate upsert: %w", err)
	}
	return len(records), nil
}

// LastSynced returns the ledger resume point for a resource.
func (s *Store) LastSynced(ctx context.Context, resource string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var through time.Time
	if err := pool.QueryRow(ctx, lastSyncedSQL, resource).Scan(&through); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last synced: %w", err)
	}
	return through, true, nil
}

// ListConsumption returns readings with interval_start in [from, to).
func (s *Store) ListConsumption(ctx context.Context, from, to time.Time) ([]octopus.ConsumptionReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listConsumptionSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list consumption: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]octopus.ConsumptionReading, 0)
	for rows.Next() {
		var r octopus.ConsumptionReading
		var kwhStr string
		if err := rows.Scan(&r.IntervalStart, &r.IntervalEnd, &kwhStr); err != nil {
			return nil, err
		}
		if r.KWh, err = decimal.NewFromString(kwhStr); err != nil {
			return nil, fmt.Errorf("parse kwh: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// ListRates returns rate periods of a kind overlapping [from, to).
func (s *Store) ListRates(ctx context.Context, kind string, from, to time.Time) ([]octopus.RatePeriod, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRatesSQL, kind, to, from)
	if queryErr != nil {
		return nil, fmt.Errorf("list %s rates: %w", kind, queryErr)
	}
	defer rows.Close()

	periods := make([]octopus.RatePeriod, 0)
	for rows.Next() {
		period, scanErr := scanRatePeriod(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

// CurrentRate returns the open-ended rate period of a kind, or nil when the
// tariff has not been synced yet.
func (s *Store) CurrentRate(ctx context.Context, kind string) (*octopus.RatePeriod, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, currentRateSQL, kind)
	if queryErr != nil {
		return nil, fmt.Errorf("current %s rate: %w", kind, queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	period, scanErr := scanRatePeriod(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &period, rows.Err()
}

// DailyTotals sums consumption per calendar day over [from, to).
func (s *Store) DailyTotals(ctx context.Context, from, to time.Time) ([]DailyUsage, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, dailyTotalsSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("daily totals: %w", queryErr)
	}
	defer rows.Close()
	return scanDailyUsage(rows)
}

// RecentCompleteDays returns daily totals for days fully before asOf's UTC
// midnight, newest first. The day in progress never appears.
func (s *Store) RecentCompleteDays(ctx context.Context, asOf time.Time, limit int) ([]DailyUsage, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	midnight := asOf.UTC().Truncate(24 * time.Hour)
	rows, queryErr := pool.Query(ctx, recentCompleteDaysSQL, midnight, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent complete days: %w", queryErr)
	}
	defer rows.Close()
	return scanDailyUsage(rows)
}

// AlertState loads the dedup row for a channel; ok is false when the
// channel has never alerted.
func (s *Store) AlertState(ctx context.Context, channel string) (AlertState, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertState{}, false, err
	}

	var state AlertState
	var lastValueStr, thresholdStr string
	err = pool.QueryRow(ctx, getAlertStateSQL, channel).Scan(&state.Direction, &lastValueStr, &thresholdStr, &state.AlertedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AlertState{}, false, nil
		}
		return AlertState{}, false, fmt.Errorf("get alert state: %w", err)
	}

	if state.LastValue, err = decimal.NewFromString(lastValueStr); err != nil {
		return AlertState{}, false, fmt.Errorf("parse last value: %w", err)
	}
	if state.Threshold, err = decimal.NewFromString(thresholdStr); err != nil {
		return AlertState{}, false, fmt.Errorf("parse threshold: %w", err)
	}
	return state, true, nil
}

// SaveAlertState upserts the dedup row for a channel.
func (s *Store) SaveAlertState(ctx context.Context, channel string, state AlertState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, saveAlertStateSQL,
		channel, state.Direction, state.LastValue.String(), state.Threshold.String(), state.AlertedAt)
	if execErr != nil {
		return fmt.Errorf("save alert state: %w", execErr)
	}
	return nil
}

// BotState loads the bot singleton row; a missing row yields zero state.
func (s *Store) BotState(ctx context.Context) (BotState, error) {
	pool, err := s.getPool()
	if err != nil {
		return BotState{}, err
	}

	var state BotState
	err = pool.QueryRow(ctx, getBotStateSQL).Scan(&state.Muted, &state.PendingCommand, &state.UpdateOffset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BotState{}, nil
		}
		return BotState{}, fmt.Errorf("get bot state: %w", err)
	}
	return state, nil
}

// SaveBotState upserts the bot singleton row.
func (s *Store) SaveBotState(ctx context.Context, state BotState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, saveBotStateSQL, state.Muted, state.PendingCommand, state.UpdateOffset)
	if execErr != nil {
		return fmt.Errorf("save bot state: %w", execErr)
	}
	return nil
}

// Export aggregates the full stored dataset for the export command.
type Export struct {
	Consumption     []octopus.ConsumptionReading `json:"consumption"`
	UnitRates       []octopus.RatePeriod         `json:"unit_rates"`
	StandingCharges []octopus.RatePeriod         `json:"standing_charges"`
	SyncLedger      []LedgerEntry                `json:"sync_ledger"`
	ExportedAt      time.Time                    `json:"exported_at"`
}

// ExportAll dumps every stored table, ordered by time.
func (s *Store) ExportAll(ctx context.Context) (*Export, error) {
	farPast := time.Time{}
	farFuture := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

	consumption, err := s.ListConsumption(ctx, farPast, farFuture)
	if err != nil {
		return nil, err
	}
	unitRates, err := s.ListRates(ctx, KindUnit, farPast, farFuture)
	if err != nil {
		return nil, err
	}
	standing, err := s.ListRates(ctx, KindStanding, farPast, farFuture)
	if err != nil {
		return nil, err
	}
	ledger, err := s.listLedger(ctx)
	if err != nil {
		return nil, err
	}

	return &Export{
		Consumption:     consumption,
		UnitRates:       unitRates,
		StandingCharges: standing,
		SyncLedger:      ledger,
		ExportedAt:      time.Now().UTC(),
	}, nil
}

func (s *Store) listLedger(ctx context.Context) ([]LedgerEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLedgerSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list ledger: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]LedgerEntry, 0)
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.Resource, &e.SyncedThrough, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanRatePeriod(rows pgx.Rows) (octopus.RatePeriod, error) {
	var (
		period    octopus.RatePeriod
		validTo   *time.Time
		excStr    string
		incStr    string
		parseErr  error
	)

	if err := rows.Scan(&period.ValidFrom, &validTo, &excStr, &incStr); err != nil {
		return octopus.RatePeriod{}, err
	}
	period.ValidTo = validTo

	if period.ValueExcVAT, parseErr = decimal.NewFromString(excStr); parseErr != nil {
		return octopus.RatePeriod{}, fmt.Errorf("parse value_exc_vat: %w", parseErr)
	}
	if period.ValueIncVAT, parseErr = decimal.NewFromString(incStr); parseErr != nil {
		return octopus.RatePeriod{}, fmt.Errorf("parse value_inc_vat: %w", parseErr)
	}
	return period, nil
}

func scanDailyUsage(rows pgx.Rows) ([]DailyUsage, error) {
	totals := make([]DailyUsage, 0)
	for rows.Next() {
		var d DailyUsage
		var totalStr string
		if err := rows.Scan(&d.Day, &totalStr, &d.Readings); err != nil {
			return nil, err
		}
		total, err := decimal.NewFromString(totalStr)
		if err != nil {
			return nil, fmt.Errorf("parse total kwh: %w", err)
		}
		d.TotalKWh = total
		totals = append(totals, d)
	}
	return totals, rows.Err()
}
