package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.HTTP.Port)
	}
	if cfg.Delivery.MinETA != 20*time.Minute || cfg.Delivery.MaxETA != 30*time.Minute {
		t.Errorf("Expected 20m..30m eta, got %s..%s", cfg.Delivery.MinETA, cfg.Delivery.MaxETA)
	}
	if cfg.Scheduler.Backend != "memory" {
		t.Errorf("Expected memory scheduler, got %s", cfg.Scheduler.Backend)
	}
	card, ok := cfg.Payment.Methods["card"]
	if !ok {
		t.Fatal("Expected default card payment method")
	}
	if card.Delay != 2*time.Second {
		t.Errorf("Expected card delay 2s, got %s", card.Delay)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  port: 6543
kafka:
  brokers:
    - k1:9092
    - k2:9092
kitchen:
  min_prep_time: 1s
  max_prep_time: 2s
payment:
  provider_mode: webhook
  webhook_secret: whsec
  methods:
    card:
      success_rate: 0.5
      delay: 10ms
`)
	t.Setenv("FOODSAGA_HTTP_PORT", "8088")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.HTTP.Port != 8088 {
		t.Errorf("Expected env override 8088, got %d", cfg.HTTP.Port)
	}
	if cfg.Kitchen.MaxPrepTime != 2*time.Second {
		t.Errorf("Expected 2s max prep, got %s", cfg.Kitchen.MaxPrepTime)
	}
	if cfg.Payment.ProviderMode != "webhook" || cfg.Payment.WebhookSecret != "whsec" {
		t.Errorf("unexpected payment config %+v", cfg.Payment)
	}
	if cfg.Payment.Methods["card"].SuccessRate != 0.5 {
		t.Errorf("Expected card success rate 0.5, got %v", cfg.Payment.Methods["card"].SuccessRate)
	}
}

func TestLoadRejectsInvalidRanges(t *testing.T) {
	tests := map[string]string{
		"prep range": "kitchen:\n  min_prep_time: 5s\n  max_prep_time: 1s\n",
		"eta range":  "delivery:\n  min_eta: 30m\n  max_eta: 10m\n",
		"mode":       "payment:\n  provider_mode: magic\n",
		"scheduler":  "scheduler:\n  backend: disk\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(viper.New(), writeConfig(t, body)); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
