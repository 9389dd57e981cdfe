// ==============================================
// Configuration for the telehealth realtime service
// Environment driven, loaded after godotenv in main
// ==============================================

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ==============================================
// Main Configuration Structure
// ==============================================

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Security  SecurityConfig
	Chat      ChatConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Port        string
	Debug       bool
}

// ==============================================
// Server Configuration
// ==============================================

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int // requests per minute per client
	RateBurst       int
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	AllowedOrigins  []string
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// ==============================================
// Database Configuration
// ==============================================

type DatabaseConfig struct {
	MongoDB MongoConfig
	Redis   RedisConfig
}

type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration
	OperationTimeout       time.Duration
}

// RedisConfig backs the cross-node presence mirror. An empty URL disables it.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
	PresenceTTL  time.Duration
}

// ==============================================
// Messaging Configuration
// ==============================================

// KafkaConfig backs the appointment-completion retry queue. No brokers
// disables the queue and failed completions are only logged.
type KafkaConfig struct {
	Brokers         []string
	CompletionTopic string
	ConsumerGroup   string
	MaxAttempts     int
	RetryBackoff    time.Duration
}

// ==============================================
// Security Configuration
// ==============================================

type SecurityConfig struct {
	JWT JWTConfig
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// ==============================================
// Chat and Session Configuration
// ==============================================

// ChatConfig limits inbound websocket traffic per connection.
type ChatConfig struct {
	MessagesPerMinute int
}

type SessionConfig struct {
	StoreTimeout       time.Duration
	InactiveSweepEvery time.Duration
	StatsRefreshEvery  time.Duration
}

type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// ==============================================
// Loading
// ==============================================

func Load() *Config {
	return &Config{
		App:       loadAppConfig(),
		Server:    loadServerConfig(),
		Database:  loadDatabaseConfig(),
		Kafka:     loadKafkaConfig(),
		Security:  loadSecurityConfig(),
		Chat:      loadChatConfig(),
		Session:   loadSessionConfig(),
		Telemetry: loadTelemetryConfig(),
	}
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:        getEnv("APP_NAME", "telehealth-realtime"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnv("APP_PORT", "8080"),
		Debug:       getEnvAsBool("APP_DEBUG", false),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Host:            getEnv("HTTP_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", "15s"),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", "10s"),
			RateLimit:       getEnvAsInt("HTTP_RATE_LIMIT", 120),
			RateBurst:       getEnvAsInt("HTTP_RATE_BURST", 30),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			SendBufferSize:  getEnvAsInt("WS_SEND_BUFFER", 256),
			PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", "54s"),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", "60s"),
			WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", "10s"),
			MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 64*1024),
			AllowedOrigins:  getEnvAsSlice("WS_ALLOWED_ORIGINS", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvAsDuration("CORS_MAX_AGE", "12h"),
		},
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MongoDB: MongoConfig{
			URI:                    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:               getEnv("MONGODB_DATABASE", "telehealth"),
			MaxPoolSize:            getEnvAsUint64("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:            getEnvAsUint64("MONGODB_MIN_POOL_SIZE", 5),
			MaxConnIdleTime:        getEnvAsDuration("MONGODB_MAX_CONN_IDLE_TIME", "30m"),
			ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", "10s"),
			ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", "5s"),
			HeartbeatInterval:      getEnvAsDuration("MONGODB_HEARTBEAT_INTERVAL", "10s"),
			OperationTimeout:       getEnvAsDuration("MONGODB_OPERATION_TIMEOUT", "5s"),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", "5s"),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", "3s"),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", "3s"),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE", 2),
			PingTimeout:  getEnvAsDuration("REDIS_PING_TIMEOUT", "2s"),
			PresenceTTL:  getEnvAsDuration("REDIS_PRESENCE_TTL", "90s"),
		},
	}
}

func loadKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:         getEnvAsSlice("KAFKA_BROKERS", ""),
		CompletionTopic: getEnv("KAFKA_COMPLETION_TOPIC", "appointment-completion-retry"),
		ConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "telehealth-realtime"),
		MaxAttempts:     getEnvAsInt("KAFKA_COMPLETION_MAX_ATTEMPTS", 5),
		RetryBackoff:    getEnvAsDuration("KAFKA_COMPLETION_BACKOFF", "5s"),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			Issuer:   getEnv("JWT_ISSUER", "telehealth-api"),
			Audience: getEnv("JWT_AUDIENCE", "telehealth-app"),
			TTL:      getEnvAsDuration("JWT_TTL", "24h"),
		},
	}
}

func loadChatConfig() ChatConfig {
	return ChatConfig{
		MessagesPerMinute: getEnvAsInt("CHAT_MESSAGES_PER_MINUTE", 120),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		StoreTimeout:       getEnvAsDuration("SESSION_STORE_TIMEOUT", "5s"),
		InactiveSweepEvery: getEnvAsDuration("SESSION_INACTIVE_SWEEP", "5m"),
		StatsRefreshEvery:  getEnvAsDuration("SESSION_STATS_REFRESH", "30s"),
	}
}

func loadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:     getEnvAsBool("OTEL_ENABLED", false),
		Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName: getEnv("OTEL_SERVICE_NAME", "telehealth-realtime"),
	}
}

// ==============================================
// Helpers
// ==============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ==============================================
// Validation
// ==============================================

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) Validate() error {
	if c.Security.JWT.Secret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.Security.JWT.Secret = "development-secret"
	}
	if c.Database.MongoDB.URI == "" || c.Database.MongoDB.Database == "" {
		return fmt.Errorf("MONGODB_URI and MONGODB_DATABASE are required")
	}
	if c.Server.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.Server.WebSocket.PingPeriod >= c.Server.WebSocket.PongWait {
		return fmt.Errorf("WS_PING_PERIOD must be shorter than WS_PONG_WAIT")
	}
	if c.Kafka.MaxAttempts <= 0 {
		c.Kafka.MaxAttempts = 1
	}
	return nil
}
