package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resource names used by the sync ledger. Each is an independent stream
// with its own resume point.
const (
	ResourceConsumption     = "consumption"
	ResourceUnitRates       = "unit_rates"
	ResourceStandingCharges = "standing_charges"
)

// Rate kinds stored in tariff_rates.
const (
	KindUnit     = "unit"
	KindStanding = "standing"
)

// Alert channels tracked in alert_state.
const (
	ChannelUsage  = "usage"
	ChannelDemand = "demand"
)

// LedgerEntry records how far a resource has been synced. Advanced only in
// the same transaction as the window's upserts.
type LedgerEntry struct {
	Resource      string
	SyncedThrough time.Time
	UpdatedAt     time.Time
}

// DailyUsage is the summed consumption of one calendar day.
type DailyUsage struct {
	Day      time.Time
	TotalKWh decimal.Decimal
	Readings int
}

// AlertState is the persisted dedup row for one alert channel.
type AlertState struct {
	Direction string
	LastValue decimal.Decimal
	Threshold decimal.Decimal
	AlertedAt time.Time
}

// BotState is the bot's singleton cross-restart state, read-modify-written
// on each poll cycle.
type BotState struct {
	Muted          bool
	PendingCommand string
	UpdateOffset   int64
}
