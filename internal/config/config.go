package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "fieldvisit/common/config"

	"github.com/joho/godotenv"
)

// Config fieldvisit-api（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig

	Log struct {
		Level  string
		Format string
	}

	// 网格过滤选项缓存
	OptionsCache struct {
		TTL       time.Duration
		KeyPrefix string
	}

	ChangeStream struct {
		Name   string
		MaxLen int64
	}

	Geocode  GeocodeConfig
	Accounts AccountsConfig
	MQTT     MQTTConfig

	// Timezone used to compute "today"/"yesterday" for the vendor gate.
	Timezone string
}

// GeocodeConfig 地理编码服务配置
type GeocodeConfig struct {
	BaseURL   string
	UserAgent string
	Country   string
	// MinInterval 请求最小间隔（客户端自限速）
	MinInterval time.Duration
	BatchSize   int
}

// AccountsConfig 特权账号操作端点
type AccountsConfig struct {
	BaseURL string
	APIKey  string
}

// MQTTConfig 路线分配推送
type MQTTConfig struct {
	Enabled     bool
	Broker      commoncfg.MQTTConfig
	TopicPrefix string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, the API falls back to memory repos.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "fieldvisit",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.OptionsCache.TTL = parseDuration(getEnv("OPTIONS_CACHE_TTL", "10m"), 10*time.Minute)
	cfg.OptionsCache.KeyPrefix = getEnv("OPTIONS_CACHE_PREFIX", "fieldvisit:filter-options:")

	cfg.ChangeStream.Name = getEnv("CHANGE_STREAM", "fieldvisit:client-changes")
	cfg.ChangeStream.MaxLen = int64(parseInt(getEnv("CHANGE_STREAM_MAXLEN", "10000"), 10000))

	cfg.Geocode.BaseURL = getEnv("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org")
	cfg.Geocode.UserAgent = getEnv("GEOCODE_USER_AGENT", "fieldvisit-geocode-backfill")
	cfg.Geocode.Country = getEnv("GEOCODE_COUNTRY", "Brazil")
	cfg.Geocode.MinInterval = parseDuration(getEnv("GEOCODE_MIN_INTERVAL", "1000ms"), time.Second)
	cfg.Geocode.BatchSize = parseInt(getEnv("GEOCODE_BATCH_SIZE", "200"), 200)

	cfg.Accounts.BaseURL = getEnv("ACCOUNTS_BASE_URL", "http://localhost:9000")
	cfg.Accounts.APIKey = getEnv("ACCOUNTS_API_KEY", "")

	// MQTT 推送（默认禁用）
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = commoncfg.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "fieldvisit-api", QoS: 1}
	cfg.MQTT.Broker.LoadFromEnv("MQTT")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "fieldvisit/vendors")

	cfg.Timezone = getEnv("APP_TIMEZONE", "America/Sao_Paulo")

	return cfg
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
