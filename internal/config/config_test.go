package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
)

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing.yaml")
	body := `
database_url: postgres://file/billing
jwt_secret: from-file
billing:
  currency: USD
  max_period_months: 2
validation:
  z_score_threshold: 3.5
  bounds:
    water:
      min: 0
      max: 400
circulation:
  heating_months: [11, 12, 1, 2, 3]
  method: area
notify:
  retry_window: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BILLING_CONFIG", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BILLING_CURRENCY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/billing" || cfg.JWTSecret != "from-file" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.HTTPAddr != ":9090" || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Billing.Currency != "USD" || cfg.Billing.MaxPeriodMonths != 2 {
		t.Fatalf("unexpected billing config %+v", cfg.Billing)
	}
	if cfg.Redis.LockTTL != 30*time.Second || cfg.Notify.RetryWindow != 5*time.Second {
		t.Fatalf("unexpected durations %+v %+v", cfg.Redis, cfg.Notify)
	}

	vc, err := cfg.ValidatorConfig()
	if err != nil {
		t.Fatalf("validator config: %v", err)
	}
	if vc.ZScoreThreshold != 3.5 || !vc.Bounds[readings.ServiceWater].Max.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("unexpected validator config %+v", vc)
	}
	if vc.Season.IsHeatingSeason(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("october must be outside the configured heating season")
	}
}

func TestCheckRejectsMissingSecrets(t *testing.T) {
	cfg := Default()
	if err := cfg.Check(); err == nil {
		t.Fatalf("expected error without database url")
	}
	cfg.DatabaseURL = "postgres://x"
	if err := cfg.Check(); err == nil {
		t.Fatalf("expected error without jwt secret")
	}
	cfg.JWTSecret = "s"
	if err := cfg.Check(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	cfg.Circulation.Method = "by_headcount"
	if err := cfg.Check(); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestValidatorConfigRejectsUnknownService(t *testing.T) {
	cfg := Default()
	cfg.Validation.Bounds = map[string]ServiceBounds{"gas": {Max: 10}}
	if _, err := cfg.ValidatorConfig(); err == nil {
		t.Fatalf("expected error for unknown service type")
	}
}
