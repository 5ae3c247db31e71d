// config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ThresholdConfig holds the five base danger thresholds, as absolute percent moves from session start.
type ThresholdConfig struct {
	Warning   float64 `yaml:"warning"`
	Risk      float64 `yaml:"risk"`
	Critical  float64 `yaml:"critical"`
	Emergency float64 `yaml:"emergency"`
	Extreme   float64 `yaml:"extreme"`
}

// DangerConfig holds the danger-zone classification settings.
type DangerConfig struct {
	BaseThresholds            ThresholdConfig    `yaml:"base_thresholds"`
	SessionMultipliers        map[string]float64 `yaml:"session_multipliers"`
	AlertCooldownSeconds      int                `yaml:"alert_cooldown_seconds"`
	EscalationCooldownSeconds int                `yaml:"escalation_cooldown_seconds"`
	HistoryCapacity           int                `yaml:"history_capacity"`
	AlertHistoryCap           int                `yaml:"alert_history_cap"`
	AlertHistoryTrimTo        int                `yaml:"alert_history_trim_to"`
	VolatilityWindowMinutes   int                `yaml:"volatility_window_minutes"`
}

// StrategyLimitConfig is the per-lot stop loss and profit target of one strategy.
type StrategyLimitConfig struct {
	StopLossPerLot float64 `yaml:"stop_loss_per_lot"`
	TargetPerLot   float64 `yaml:"target_per_lot"`
}

// RiskConfig holds position and portfolio limits.
type RiskConfig struct {
	Capital               float64                        `yaml:"capital"`
	DailyLossFraction     float64                        `yaml:"daily_loss_fraction"`
	MaxOpenPositions      int                            `yaml:"max_open_positions"`
	EntryCutoff           string                         `yaml:"entry_cutoff"`
	MandatoryExit         string                         `yaml:"mandatory_exit"`
	MarketOpen            string                         `yaml:"market_open"`
	MarketClose           string                         `yaml:"market_close"`
	AlertRetentionMinutes int                            `yaml:"alert_retention_minutes"`
	CalendarFile          string                         `yaml:"calendar_file"`
	Strategies            map[string]StrategyLimitConfig `yaml:"strategies"`
	DefaultStrategy       StrategyLimitConfig            `yaml:"default_strategy"`
}

// DailyLossLimit is the absolute rupee loss that trips the portfolio circuit breaker.
func (r *RiskConfig) DailyLossLimit() float64 {
	return r.Capital * r.DailyLossFraction
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds all general, non-risk-rule configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds            int    `yaml:"http_timeout_seconds"`
	DangerCheckIntervalSeconds    int    `yaml:"danger_check_interval_seconds"`
	PositionCheckIntervalSeconds  int    `yaml:"position_check_interval_seconds"`
	PortfolioCheckIntervalSeconds int    `yaml:"portfolio_check_interval_seconds"`
	HeartbeatIntervalMinutes      int    `yaml:"heartbeat_interval_minutes"`
	NotifyRetryDelaySeconds       int    `yaml:"notify_retry_delay_seconds"`
	MarketHoursOnly               bool   `yaml:"market_hours_only"`
	LogDirectory                  string `yaml:"log_directory"`
	StateDirectory                string `yaml:"state_directory"`
	AuditDBPath                   string `yaml:"audit_db_path"`
	MetricsAddr                   string `yaml:"metrics_addr"`
}

// SimPositionConfig seeds one simulated open position.
type SimPositionConfig struct {
	ID          string  `yaml:"id"`
	Symbol      string  `yaml:"symbol"`
	Strategy    string  `yaml:"strategy"`
	Lots        int     `yaml:"lots"`
	MTMPerPoint float64 `yaml:"mtm_per_point"`
}

// SimulationConfig drives the simulated price feed used when use_simulation is set.
type SimulationConfig struct {
	Mode          string              `yaml:"mode"` // sine, meltdown or rally
	InitialPrices map[string]float64  `yaml:"initial_prices"`
	AmplitudePct  float64             `yaml:"amplitude_pct"`
	PeriodMinutes int                 `yaml:"period_minutes"`
	TickSeconds   int                 `yaml:"tick_seconds"`
	Positions     []SimPositionConfig `yaml:"positions"`
	// Market backdrop reported by the simulator.
	VIX         float64 `yaml:"vix"`
	VolumeSurge bool    `yaml:"volume_surge"`
	NewsImpact  string  `yaml:"news_impact"`
}

// Config is the top-level configuration structure.
type Config struct {
	Symbols       []string          `yaml:"symbols"`
	Timezone      string            `yaml:"timezone"`
	UseSimulation bool              `yaml:"use_simulation"`
	Danger        *DangerConfig     `yaml:"danger"`
	Risk          *RiskConfig       `yaml:"risk"`
	Normal        *NormalConfig     `yaml:"normal_config"`
	Logs          *LogConfig        `yaml:"logs"`
	Simulation    *SimulationConfig `yaml:"simulation"`
}

// NewConfig creates a Config carrying the empirically tuned defaults.
// Anything present in config.yaml overrides these values.
func NewConfig() *Config {
	return &Config{
		Symbols:  []string{"NIFTY", "BANKNIFTY"},
		Timezone: "Asia/Kolkata",
		Danger: &DangerConfig{
			BaseThresholds: ThresholdConfig{
				Warning:   1.0,
				Risk:      1.25,
				Critical:  1.5,
				Emergency: 2.0,
				Extreme:   2.5,
			},
			SessionMultipliers: map[string]float64{
				"PRE_MARKET":  0.7,
				"OPENING":     1.2,
				"MORNING":     1.0,
				"MID_DAY":     0.9,
				"AFTERNOON":   1.0,
				"CLOSING":     1.3,
				"POST_MARKET": 0.8,
			},
			AlertCooldownSeconds:      180,
			EscalationCooldownSeconds: 60,
			HistoryCapacity:           1000,
			AlertHistoryCap:           500,
			AlertHistoryTrimTo:        400,
			VolatilityWindowMinutes:   30,
		},
		Risk: &RiskConfig{
			Capital:               200000,
			DailyLossFraction:     0.05,
			MaxOpenPositions:      10,
			EntryCutoff:           "11:00",
			MandatoryExit:         "15:10",
			MarketOpen:            "09:15",
			MarketClose:           "15:30",
			AlertRetentionMinutes: 60,
			Strategies: map[string]StrategyLimitConfig{
				"IRON_CONDOR":           {StopLossPerLot: 1500, TargetPerLot: 3000},
				"BUTTERFLY_SPREAD":      {StopLossPerLot: 1200, TargetPerLot: 2500},
				"CALENDAR_SPREAD":       {StopLossPerLot: 1500, TargetPerLot: 3000},
				"HEDGED_STRANGLE":       {StopLossPerLot: 2500, TargetPerLot: 5000},
				"DIRECTIONAL_FUTURES":   {StopLossPerLot: 3000, TargetPerLot: 6000},
				"JADE_LIZARD":           {StopLossPerLot: 2500, TargetPerLot: 4500},
				"RATIO_SPREADS":         {StopLossPerLot: 2200, TargetPerLot: 4500},
				"BROKEN_WING_BUTTERFLY": {StopLossPerLot: 2000, TargetPerLot: 4500},
			},
			DefaultStrategy: StrategyLimitConfig{StopLossPerLot: 2000, TargetPerLot: 4000},
		},
		Normal: &NormalConfig{
			HTTPTimeoutSeconds:            10,
			DangerCheckIntervalSeconds:    30,
			PositionCheckIntervalSeconds:  60,
			PortfolioCheckIntervalSeconds: 120,
			HeartbeatIntervalMinutes:      5,
			NotifyRetryDelaySeconds:       5,
			MarketHoursOnly:               true,
			LogDirectory:                  "logs",
			StateDirectory:                "state",
			AuditDBPath:                   "state/audit.db",
			MetricsAddr:                   ":9102",
		},
		Logs: &LogConfig{
			LogLevel:   "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Simulation: &SimulationConfig{
			Mode:          "sine",
			InitialPrices: map[string]float64{"NIFTY": 22000, "BANKNIFTY": 48000},
			AmplitudePct:  1.8,
			PeriodMinutes: 90,
			TickSeconds:   1,
			VIX:           20,
		},
	}
}

// LoadConfig loads configuration from a given path on top of the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Error: Config file not found at %s. Program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("Critical config missing: 'symbols' must list at least one tracked underlying")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("Config error: 'symbols' contains an empty entry")
		}
	}
	if c.Timezone == "" {
		return fmt.Errorf("Critical config missing: 'timezone' must be explicitly specified in config.yaml (e.g., 'Asia/Kolkata')")
	}

	if c.Danger == nil {
		return fmt.Errorf("Critical config missing: 'danger' configuration block must be provided in config.yaml")
	}
	t := c.Danger.BaseThresholds
	if t.Warning <= 0 {
		return fmt.Errorf("Critical config missing: 'danger.base_thresholds.warning' must be positive")
	}
	if !(t.Warning < t.Risk && t.Risk < t.Critical && t.Critical < t.Emergency && t.Emergency < t.Extreme) {
		return fmt.Errorf("Config error: danger.base_thresholds must be strictly increasing from warning to extreme")
	}
	for _, phase := range []string{"PRE_MARKET", "OPENING", "MORNING", "MID_DAY", "AFTERNOON", "CLOSING", "POST_MARKET"} {
		m, ok := c.Danger.SessionMultipliers[phase]
		if !ok {
			return fmt.Errorf("Critical config missing: 'danger.session_multipliers.%s' must be specified", phase)
		}
		if m <= 0 {
			return fmt.Errorf("Config error: danger.session_multipliers.%s must be positive, got %.2f", phase, m)
		}
	}
	if c.Danger.AlertCooldownSeconds <= 0 || c.Danger.EscalationCooldownSeconds <= 0 {
		return fmt.Errorf("Config error: danger cooldowns must be positive")
	}
	if c.Danger.HistoryCapacity < 20 {
		return fmt.Errorf("Config error: danger.history_capacity must be at least 20, got %d", c.Danger.HistoryCapacity)
	}
	if c.Danger.AlertHistoryTrimTo <= 0 || c.Danger.AlertHistoryTrimTo > c.Danger.AlertHistoryCap {
		return fmt.Errorf("Config error: danger.alert_history_trim_to (%d) must be positive and not exceed alert_history_cap (%d)", c.Danger.AlertHistoryTrimTo, c.Danger.AlertHistoryCap)
	}
	if c.Danger.VolatilityWindowMinutes <= 0 {
		return fmt.Errorf("Config error: danger.volatility_window_minutes must be positive")
	}

	if c.Risk == nil {
		return fmt.Errorf("Critical config missing: 'risk' configuration block must be provided in config.yaml")
	}
	if c.Risk.Capital <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.capital' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.DailyLossFraction <= 0 || c.Risk.DailyLossFraction >= 1 {
		return fmt.Errorf("Config error: risk.daily_loss_fraction must be within (0, 1), got %.4f", c.Risk.DailyLossFraction)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("Config error: risk.max_open_positions must be positive")
	}
	for name, value := range map[string]string{
		"entry_cutoff":   c.Risk.EntryCutoff,
		"mandatory_exit": c.Risk.MandatoryExit,
		"market_open":    c.Risk.MarketOpen,
		"market_close":   c.Risk.MarketClose,
	} {
		if _, err := ParseClock(value); err != nil {
			return fmt.Errorf("Config error: risk.%s: %w", name, err)
		}
	}
	openAt, _ := ParseClock(c.Risk.MarketOpen)
	closeAt, _ := ParseClock(c.Risk.MarketClose)
	if openAt >= closeAt {
		return fmt.Errorf("Config error: risk.market_open must be before risk.market_close")
	}
	if c.Risk.AlertRetentionMinutes <= 0 {
		return fmt.Errorf("Config error: risk.alert_retention_minutes must be positive")
	}
	for name, l := range c.Risk.Strategies {
		if l.StopLossPerLot <= 0 || l.TargetPerLot <= 0 {
			return fmt.Errorf("Config error: risk.strategies.%s needs positive stop_loss_per_lot and target_per_lot", name)
		}
	}
	if c.Risk.DefaultStrategy.StopLossPerLot <= 0 || c.Risk.DefaultStrategy.TargetPerLot <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.default_strategy' needs positive stop_loss_per_lot and target_per_lot")
	}

	if c.Normal == nil {
		return fmt.Errorf("Critical config missing: 'normal_config' configuration block must be provided in config.yaml")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.http_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.DangerCheckIntervalSeconds <= 0 || c.Normal.PositionCheckIntervalSeconds <= 0 || c.Normal.PortfolioCheckIntervalSeconds <= 0 {
		return fmt.Errorf("Config error: normal_config check intervals must all be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.heartbeat_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.NotifyRetryDelaySeconds < 0 {
		return fmt.Errorf("Config error: normal_config.notify_retry_delay_seconds cannot be negative")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.log_directory' must be explicitly specified in config.yaml (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.state_directory' must be explicitly specified in config.yaml (e.g., 'state')")
	}

	if c.Logs == nil {
		return fmt.Errorf("Critical config missing: 'logs' configuration block must be provided in config.yaml")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("Critical config missing: 'logs.log_level' must be explicitly specified in config.yaml (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 || c.Logs.MaxBackups <= 0 || c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("Config error: logs.max_size_mb, logs.max_backups and logs.max_age_days must be positive")
	}

	if c.UseSimulation {
		if c.Simulation == nil {
			return fmt.Errorf("Critical config missing: 'simulation' block is required when use_simulation is true")
		}
		switch c.Simulation.Mode {
		case "sine", "meltdown", "rally":
		default:
			return fmt.Errorf("Config error: simulation.mode must be 'sine', 'meltdown' or 'rally', got '%s'", c.Simulation.Mode)
		}
		switch strings.ToUpper(c.Simulation.NewsImpact) {
		case "", "LOW", "MEDIUM", "HIGH":
		default:
			return fmt.Errorf("Config error: simulation.news_impact must be empty, 'low', 'medium' or 'high', got '%s'", c.Simulation.NewsImpact)
		}
		for _, s := range c.Symbols {
			if c.Simulation.InitialPrices[s] <= 0 {
				return fmt.Errorf("Critical config missing: 'simulation.initial_prices.%s' must be positive", s)
			}
		}
	}
	return nil
}

// Location resolves the market time zone, falling back to a fixed IST offset when tzdata is unavailable.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// ParseClock parses an "HH:MM" wall-clock time into an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// EnvConfig carries secrets read from the environment (or a .env file).
type EnvConfig struct {
	GupshupAPIKey  string
	GupshupAppName string
	GupshupBaseURL string
	GupshupSource  string
	AdminPhone     string
}

// LoadEnvConfig reads the notification gateway credentials.
func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		GupshupAPIKey:  os.Getenv("GUPSHUP_API_KEY"),
		GupshupAppName: os.Getenv("GUPSHUP_APP_NAME"),
		GupshupBaseURL: os.Getenv("GUPSHUP_BASE_URL"),
		GupshupSource:  os.Getenv("GUPSHUP_SOURCE_NUMBER"),
		AdminPhone:     os.Getenv("ADMIN_PHONE_NUMBER"),
	}
}

// NotificationsConfigured reports whether the WhatsApp gateway can be used.
func (e *EnvConfig) NotificationsConfigured() bool {
	return e.GupshupAPIKey != "" && e.GupshupSource != "" && e.AdminPhone != ""
}
