package octopus

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionReading is one settled half-hourly meter interval. The
// interval start is the natural key; a re-fetch may revise the value.
type ConsumptionReading struct {
	IntervalStart time.Time       `json:"interval_start"`
	IntervalEnd   time.Time       `json:"interval_end"`
	KWh           decimal.Decimal `json:"consumption"`
}

// RatePeriod is a tariff price valid over [ValidFrom, ValidTo). A nil
// ValidTo marks the current open-ended period.
type RatePeriod struct {
	ValidFrom   time.Time       `json:"valid_from"`
	ValidTo     *time.Time      `json:"valid_to"`
	ValueExcVAT decimal.Decimal `json:"value_exc_vat"`
	ValueIncVAT decimal.Decimal `json:"value_inc_vat"`
}

// Covers reports whether the period is active at the given instant.
func (r RatePeriod) Covers(t time.Time) bool {
	if t.Before(r.ValidFrom) {
		return false
	}
	return r.ValidTo == nil || t.Before(*r.ValidTo)
}

// DemandReading is a single live-telemetry sample from the meter's
// companion device, in watts.
type DemandReading struct {
	Demand float64
	ReadAt time.Time
}

// MeterDetails identifies the electricity meter point discovered from the
// account endpoint.
type MeterDetails struct {
	MPAN       string
	Serial     string
	TariffCode string
}
