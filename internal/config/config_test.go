package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("CHAT_MESSAGES_PER_MINUTE", "")
	t.Setenv("WS_PING_PERIOD", "")
	t.Setenv("WS_PONG_WAIT", "")

	cfg := Load()
	if cfg.App.Environment != "development" {
		t.Fatalf("unexpected environment %q", cfg.App.Environment)
	}
	if cfg.Server.WebSocket.PingPeriod >= cfg.Server.WebSocket.PongWait {
		t.Fatalf("default ping period must be shorter than pong wait")
	}
	if len(cfg.Kafka.Brokers) != 0 || cfg.Database.Redis.URL != "" {
		t.Fatalf("kafka and redis should be disabled by default")
	}
	if cfg.Chat.MessagesPerMinute != 120 {
		t.Fatalf("unexpected chat rate %d", cfg.Chat.MessagesPerMinute)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("WS_PONG_WAIT", "90s")
	t.Setenv("HTTP_RATE_LIMIT", "not-a-number")

	cfg := Load()
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Server.WebSocket.PongWait != 90*time.Second {
		t.Fatalf("unexpected pong wait %v", cfg.Server.WebSocket.PongWait)
	}
	if cfg.Server.HTTP.RateLimit != 120 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.Server.HTTP.RateLimit)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("WS_PING_PERIOD", "")
	t.Setenv("WS_PONG_WAIT", "")

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should validate: %v", err)
	}
	if cfg.Security.JWT.Secret == "" {
		t.Fatalf("development should fall back to a secret")
	}

	prod := Load()
	prod.App.Environment = "production"
	prod.Security.JWT.Secret = ""
	if err := prod.Validate(); err == nil {
		t.Fatalf("production without a secret must fail")
	}

	bad := Load()
	bad.Server.WebSocket.PingPeriod = bad.Server.WebSocket.PongWait
	if err := bad.Validate(); err == nil {
		t.Fatalf("ping period equal to pong wait must fail")
	}
}
