package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Scan configuration
	ScanRateLimit  int // accepted scan requests per device per minute
	ScanFeedPrefix string

	// Agent configuration
	AgentPort      string
	ServerURL      string
	DataDir        string
	DeviceName     string
	RequestTimeout time.Duration

	// Sync configuration
	SyncInterval    time.Duration
	ReconnectSettle time.Duration
	CacheMaxAge     time.Duration
	RefreshLimit    int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Scan
		ScanRateLimit:  getEnvAsInt("SCAN_RATE_LIMIT", 60),
		ScanFeedPrefix: getEnv("SCAN_FEED_PREFIX", "scan-feed"),

		// Agent
		AgentPort:      getEnv("AGENT_PORT", "8190"),
		ServerURL:      getEnv("SERVER_URL", "http://localhost:8090"),
		DataDir:        getEnv("DATA_DIR", "./agent_data"),
		DeviceName:     getEnv("DEVICE_NAME", ""),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", "10s"),

		// Sync
		SyncInterval:    getEnvAsDuration("SYNC_INTERVAL", "30s"),
		ReconnectSettle: getEnvAsDuration("RECONNECT_SETTLE", "2s"),
		CacheMaxAge:     getEnvAsDuration("CACHE_MAX_AGE", "24h"),
		RefreshLimit:    getEnvAsInt("REFRESH_LIMIT", 500),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
