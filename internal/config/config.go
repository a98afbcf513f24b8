package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	circulation "utility-billing/internal/circulation/domain"
	readings "utility-billing/internal/readings/domain"
	"utility-billing/internal/readings/validation"
)

// Config is the process configuration.
type Config struct {
	DatabaseURL string            `yaml:"database_url"`
	HTTPAddr    string            `yaml:"http_addr"`
	JWTSecret   string            `yaml:"jwt_secret"`
	Redis       RedisConfig       `yaml:"redis"`
	Billing     BillingConfig     `yaml:"billing"`
	Validation  ValidationConfig  `yaml:"validation"`
	Circulation CirculationConfig `yaml:"circulation"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// RedisConfig enables the distributed invoice lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"`
}

// BillingConfig holds invoice generation settings.
type BillingConfig struct {
	Currency        string `yaml:"currency"`
	MaxPeriodMonths int    `yaml:"max_period_months"`
	Timezone        string `yaml:"timezone"`
}

// ServiceBounds are per service consumption limits.
type ServiceBounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ValidationConfig holds reading validation thresholds.
type ValidationConfig struct {
	Bounds               map[string]ServiceBounds `yaml:"bounds"`
	ZScoreThreshold      float64                  `yaml:"z_score_threshold"`
	MinHistorySamples    int                      `yaml:"min_history_samples"`
	DuplicateWindow      time.Duration            `yaml:"duplicate_window"`
	RolloverHighFraction float64                  `yaml:"rollover_high_fraction"`
	RolloverLowFraction  float64                  `yaml:"rollover_low_fraction"`
	DefaultRegisterLimit float64                  `yaml:"default_register_limit"`
	RejectRollover       bool                     `yaml:"reject_rollover"`
	Concurrency          int                      `yaml:"concurrency"`
}

// CirculationConfig holds circulation loss settings.
type CirculationConfig struct {
	HeatingMonths []int   `yaml:"heating_months"`
	SpecificHeat  float64 `yaml:"specific_heat"`
	DeltaT        float64 `yaml:"delta_t"`
	Method        string  `yaml:"method"`
}

// NotifyConfig configures reviewer notifications. Empty WebhookURL disables them.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	Template      string        `yaml:"template"`
	ReviewBaseURL string        `yaml:"review_base_url"`
	RetryWindow   time.Duration `yaml:"retry_window"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Redis: RedisConfig{
			LockTTL:  30 * time.Second,
			LockWait: 10 * time.Second,
		},
		Billing: BillingConfig{
			Currency:        "EUR",
			MaxPeriodMonths: 3,
			Timezone:        "Europe/Vilnius",
		},
		Validation: ValidationConfig{
			Bounds: map[string]ServiceBounds{
				string(readings.ServiceElectricity): {Max: 10000},
				string(readings.ServiceWater):       {Max: 1000},
				string(readings.ServiceHeating):     {Max: 5000},
			},
			ZScoreThreshold:      2.0,
			MinHistorySamples:    3,
			DuplicateWindow:      6 * time.Hour,
			RolloverHighFraction: 0.9,
			RolloverLowFraction:  0.1,
			DefaultRegisterLimit: 99999,
			Concurrency:          8,
		},
		Circulation: CirculationConfig{
			HeatingMonths: []int{10, 11, 12, 1, 2, 3, 4},
			SpecificHeat:  1.163,
			DeltaT:        45,
			Method:        string(circulation.MethodEqual),
		},
		Notify: NotifyConfig{
			RetryWindow: 30 * time.Second,
		},
	}
}

// Load applies, in order, the defaults, the YAML file named by BILLING_CONFIG
// and environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.LockTTL = getenvDuration("INVOICE_LOCK_TTL", cfg.Redis.LockTTL)
	cfg.Redis.LockWait = getenvDuration("INVOICE_LOCK_WAIT", cfg.Redis.LockWait)
	cfg.Billing.Currency = getenvDefault("BILLING_CURRENCY", cfg.Billing.Currency)
	cfg.Billing.MaxPeriodMonths = getenvIntDefault("BILLING_MAX_PERIOD_MONTHS", cfg.Billing.MaxPeriodMonths)
	cfg.Billing.Timezone = getenvDefault("BILLING_TIMEZONE", cfg.Billing.Timezone)
	cfg.Validation.ZScoreThreshold = getenvFloatDefault("VALIDATION_Z_SCORE", cfg.Validation.ZScoreThreshold)
	cfg.Validation.RejectRollover = getenvBool("VALIDATION_REJECT_ROLLOVER", cfg.Validation.RejectRollover)
	cfg.Circulation.Method = getenvDefault("CIRCULATION_METHOD", cfg.Circulation.Method)
	cfg.Notify.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.ReviewBaseURL = getenvDefault("NOTIFY_REVIEW_BASE_URL", cfg.Notify.ReviewBaseURL)
	cfg.Notify.RetryWindow = getenvDuration("NOTIFY_RETRY_WINDOW", cfg.Notify.RetryWindow)

	return cfg, cfg.Check()
}

// Check reports the first invalid setting.
func (c Config) Check() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.Billing.MaxPeriodMonths <= 0 {
		return errors.New("config: billing.max_period_months must be positive")
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("config: billing.timezone: %w", err)
	}
	if _, err := c.Season(); err != nil {
		return err
	}
	if _, err := circulation.ParseMethod(c.Circulation.Method); err != nil {
		return err
	}
	return c.Constants().Validate()
}

// Location returns the billing timezone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Season returns the configured heating season.
func (c Config) Season() (circulation.Season, error) {
	months := make([]time.Month, 0, len(c.Circulation.HeatingMonths))
	for _, m := range c.Circulation.HeatingMonths {
		months = append(months, time.Month(m))
	}
	return circulation.NewSeason(months)
}

// Constants returns the configured physical constants.
func (c Config) Constants() circulation.Constants {
	return circulation.Constants{
		SpecificHeat: decimal.NewFromFloat(c.Circulation.SpecificHeat),
		DeltaT:       decimal.NewFromFloat(c.Circulation.DeltaT),
	}
}

// ValidatorConfig builds the reading validator thresholds.
func (c Config) ValidatorConfig() (validation.Config, error) {
	out := validation.DefaultConfig()
	season, err := c.Season()
	if err != nil {
		return out, err
	}
	out.Season = season
	v := c.Validation
	if len(v.Bounds) > 0 {
		out.Bounds = make(map[readings.ServiceType]validation.Bounds, len(v.Bounds))
		for name, b := range v.Bounds {
			service, err := readings.ParseServiceType(name)
			if err != nil {
				return out, fmt.Errorf("config: validation.bounds: %w", err)
			}
			out.Bounds[service] = validation.Bounds{Min: decimal.NewFromFloat(b.Min), Max: decimal.NewFromFloat(b.Max)}
		}
	}
	if v.ZScoreThreshold > 0 {
		out.ZScoreThreshold = v.ZScoreThreshold
	}
	if v.MinHistorySamples > 0 {
		out.MinHistorySamples = v.MinHistorySamples
	}
	if v.DuplicateWindow > 0 {
		out.DuplicateWindow = v.DuplicateWindow
	}
	if v.RolloverHighFraction > 0 {
		out.RolloverHighFraction = decimal.NewFromFloat(v.RolloverHighFraction)
	}
	if v.RolloverLowFraction > 0 {
		out.RolloverLowFraction = decimal.NewFromFloat(v.RolloverLowFraction)
	}
	if v.DefaultRegisterLimit > 0 {
		out.DefaultRegisterLimit = decimal.NewFromFloat(v.DefaultRegisterLimit)
	}
	return out, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
