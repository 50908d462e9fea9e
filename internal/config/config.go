package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"octotrack/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Octopus  OctopusConfig  `mapstructure:"octopus"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Bot      BotConfig      `mapstructure:"bot"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// OctopusConfig covers Octopus Energy API access.
type OctopusConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	GraphQLURL     string        `mapstructure:"graphql_url"`
	APIKey         string        `mapstructure:"api_key"`
	Account        string        `mapstructure:"account"`
	MPAN           string        `mapstructure:"mpan"`
	Serial         string        `mapstructure:"serial"`
	TariffCode     string        `mapstructure:"tariff_code"`
	DeviceID       string        `mapstructure:"device_id"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SyncConfig governs sync window defaults.
type SyncConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled              bool           `mapstructure:"enabled"`
	UsageThresholdKWh    float64        `mapstructure:"usage_threshold_kwh"`
	DemandThresholdWatts float64        `mapstructure:"demand_threshold_watts"`
	ReportDemand         bool           `mapstructure:"report_demand"`
	ReportThresholdWatts float64        `mapstructure:"report_threshold_watts"`
	Telegram             TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// BotConfig tunes the long-polling command bot.
type BotConfig struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// WatchConfig governs the periodic demand watch loop.
type WatchConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	TickTimeout  time.Duration `mapstructure:"tick_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults. The
// returned Updater is the single write path for runtime-mutable keys.
func Load(path string) (*Config, *Updater, error) {
	v := viper.New()
	v.SetEnvPrefix("OCTOPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, &Updater{v: v, cfg: &cfg}, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "octotrack")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("octopus.base_url", "https://api.octopus.energy/v1")
	v.SetDefault("octopus.graphql_url", "https://api.octopus.energy/v1/graphql/")
	v.SetDefault("octopus.page_size", 25000)
	v.SetDefault("octopus.request_timeout", "30s")
	v.SetDefault("octopus.user_agent", "octotrack/1.0")

	v.SetDefault("sync.lookback_days", 30)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.usage_threshold_kwh", 25.0)
	v.SetDefault("alerting.demand_threshold_watts", 1000.0)
	v.SetDefault("alerting.report_demand", true)
	v.SetDefault("alerting.report_threshold_watts", 2000.0)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("bot.poll_timeout", "30s")
	v.SetDefault("bot.retry_delay", "5s")

	v.SetDefault("watch.interval", "1m")
	v.SetDefault("watch.startup_delay", "0s")
	v.SetDefault("watch.tick_timeout", "30s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x6f63746f))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Octopus.PageSize <= 0 {
		return fmt.Errorf("octopus.page_size must be greater than zero")
	}
	if c.Sync.LookbackDays <= 0 {
		return fmt.Errorf("sync.lookback_days must be greater than zero")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be greater than zero")
	}
	if c.Alerting.UsageThresholdKWh < 0 {
		return fmt.Errorf("alerting.usage_threshold_kwh cannot be negative")
	}
	if c.Alerting.DemandThresholdWatts < 0 {
		return fmt.Errorf("alerting.demand_threshold_watts cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// RequireMeter checks the fields sync needs; init populates them.
func (c *Config) RequireMeter() error {
	missing := make([]string, 0, 4)
	if c.Octopus.APIKey == "" {
		missing = append(missing, "octopus.api_key")
	}
	if c.Octopus.MPAN == "" {
		missing = append(missing, "octopus.mpan")
	}
	if c.Octopus.Serial == "" {
		missing = append(missing, "octopus.serial")
	}
	if c.Octopus.TariffCode == "" {
		missing = append(missing, "octopus.tariff_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing config: %s (run 'octotrack init' or set OCTOPUS_* env)", strings.Join(missing, ", "))
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
