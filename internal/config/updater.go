package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Updater is the single mutation path for runtime-rewritable configuration.
// Each setter updates the in-memory config and rewrites the config file so
// the change survives restarts.
type Updater struct {
	v   *viper.Viper
	cfg *Config
}

// SetMeterDetails records the discovered meter identity (init command).
func (u *Updater) SetMeterDetails(mpan, serial, tariffCode string) error {
	u.v.Set("octopus.mpan", mpan)
	u.v.Set("octopus.serial", serial)
	u.v.Set("octopus.tariff_code", tariffCode)
	u.cfg.Octopus.MPAN = mpan
	u.cfg.Octopus.Serial = serial
	u.cfg.Octopus.TariffCode = tariffCode
	return u.write()
}

// SetDemandThreshold updates the live-demand alert threshold in watts.
func (u *Updater) SetDemandThreshold(watts float64) error {
	u.v.Set("alerting.demand_threshold_watts", watts)
	u.cfg.Alerting.DemandThresholdWatts = watts
	return u.write()
}

// SetReportDemand enables or disables demand reporting; when enabling, the
// report threshold is updated as well.
func (u *Updater) SetReportDemand(enabled bool, watts float64) error {
	u.v.Set("alerting.report_demand", enabled)
	u.cfg.Alerting.ReportDemand = enabled
	if enabled {
		u.v.Set("alerting.report_threshold_watts", watts)
		u.cfg.Alerting.ReportThresholdWatts = watts
	}
	return u.write()
}

func (u *Updater) write() error {
	if err := u.v.WriteConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := u.v.WriteConfigAs("config.yaml"); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			return nil
		}
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
