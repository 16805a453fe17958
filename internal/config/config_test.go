package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadConfigFromEnvironmentOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:secret@db:5432/courier")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("CLIENT_ORIGIN", "https://app.example.com")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("EMAIL_FROM", "noreply@example.com")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabaseURL != "postgres://app:secret@db:5432/courier" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.ClientOrigin != "https://app.example.com" {
		t.Errorf("ClientOrigin = %q", cfg.ClientOrigin)
	}
	if cfg.AMQPURL != "amqp://guest:guest@mq:5672/" {
		t.Errorf("AMQPURL = %q", cfg.AMQPURL)
	}
	if cfg.AWSRegion != "us-east-1" {
		t.Errorf("AWSRegion = %q", cfg.AWSRegion)
	}
	if cfg.EmailFrom != "noreply@example.com" {
		t.Errorf("EmailFrom = %q", cfg.EmailFrom)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.NotificationRetentionDays != 30 {
		t.Errorf("NotificationRetentionDays = %d, want 30", cfg.NotificationRetentionDays)
	}
	commission, baseFare, perKm, distance, err := cfg.Pricing()
	if err != nil {
		t.Fatalf("Pricing: %v", err)
	}
	if !commission.Equal(decimal.RequireFromString("0.15")) ||
		!baseFare.Equal(decimal.RequireFromString("5.00")) ||
		!perKm.Equal(decimal.RequireFromString("2.00")) ||
		!distance.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("pricing defaults = %s %s %s %s", commission, baseFare, perKm, distance)
	}
}
