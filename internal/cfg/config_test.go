package cfg

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "")
	t.Setenv("MONGODB_DATABASE", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("MINIO_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != "5000" {
		t.Errorf("expected default port 5000, got %s", cfg.HTTPPort)
	}
	if cfg.MongoDatabase != "wattwiseai" {
		t.Errorf("expected default database wattwiseai, got %s", cfg.MongoDatabase)
	}
	if cfg.KafkaEnabled() {
		t.Error("kafka should be disabled without brokers")
	}
	if cfg.MinioEnabled() {
		t.Error("minio should be disabled without endpoint")
	}
	if cfg.ReconcileInterval != 0 {
		t.Errorf("reconcile should be off by default, got %v", cfg.ReconcileInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("SCRIPT_TIMEOUT", "45s")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.ScriptTimeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.ScriptTimeout)
	}
	if cfg.RateLimitRequests != 120 {
		t.Errorf("invalid int should fall back, got %d", cfg.RateLimitRequests)
	}
	if !cfg.MinioUseSSL {
		t.Error("MINIO_USE_SSL=1 should enable ssl")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret")
	}
}
