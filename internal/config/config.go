package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config конфигурация сервиса
type Config struct {
	ServerPort string

	Redis struct {
		Addr      string
		Password  string
		DB        int
		ResultTTL time.Duration
	}

	Database struct {
		Enabled  bool
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	Kafka struct {
		Enabled bool
		Brokers []string
		Topic   string
	}

	// Engine параметры расчета
	Engine struct {
		Timezone           string
		AirDensity         float64
		AmbientTemperature float64 // K, 0 = не задано
		AmbientPressure    float64 // Pa, 0 = не задано
		AmbientHumidity    float64 // 0..1, <0 = не задано
		DBSCANEps          float64 // 0 = автоматический подбор
		BandPolicy         string  // "cap" или "error"
		EstimateConstants  bool
		YawBinWidth        float64
		SkipDataGate       bool
		Workers            int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load загружает конфигурацию из environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnv("SERVER_PORT", "8080")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)
	cfg.Redis.ResultTTL = time.Duration(getEnvAsInt("RESULT_TTL_HOURS", 24)) * time.Hour

	cfg.Database.Enabled = getEnvAsBool("DB_ENABLED", false)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnv("DB_NAME", "wpa")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", false)
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "wpa.computations")

	cfg.Engine.Timezone = getEnv("ENGINE_TIMEZONE", "UTC")
	cfg.Engine.AirDensity = getEnvAsFloat("ENGINE_AIR_DENSITY", 1.225)
	cfg.Engine.AmbientTemperature = getEnvAsFloat("ENGINE_AMBIENT_TEMPERATURE", 0)
	cfg.Engine.AmbientPressure = getEnvAsFloat("ENGINE_AMBIENT_PRESSURE", 0)
	cfg.Engine.AmbientHumidity = getEnvAsFloat("ENGINE_AMBIENT_HUMIDITY", -1)
	cfg.Engine.DBSCANEps = getEnvAsFloat("ENGINE_DBSCAN_EPS", 0)
	cfg.Engine.BandPolicy = getEnv("ENGINE_BAND_POLICY", "cap")
	cfg.Engine.EstimateConstants = getEnvAsBool("ENGINE_ESTIMATE_CONSTANTS", true)
	cfg.Engine.YawBinWidth = getEnvAsFloat("ENGINE_YAW_BIN_WIDTH", 10)
	cfg.Engine.SkipDataGate = getEnvAsBool("ENGINE_SKIP_DATA_GATE", false)
	cfg.Engine.Workers = getEnvAsInt("ENGINE_WORKERS", 4)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine.BandPolicy {
	case "cap", "error":
	default:
		return fmt.Errorf("invalid ENGINE_BAND_POLICY %q: expected cap or error", c.Engine.BandPolicy)
	}
	if c.Engine.YawBinWidth != 5 && c.Engine.YawBinWidth != 10 {
		return fmt.Errorf("invalid ENGINE_YAW_BIN_WIDTH %v: expected 5 or 10", c.Engine.YawBinWidth)
	}
	if c.Engine.AirDensity <= 0 {
		return fmt.Errorf("invalid ENGINE_AIR_DENSITY %v", c.Engine.AirDensity)
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("invalid ENGINE_TIMEZONE %q: %w", c.Engine.Timezone, err)
	}
	if c.Engine.Workers < 1 {
		c.Engine.Workers = 1
	}
	return nil
}

// DSN строка подключения к Postgres
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
		c.Database.Name, c.Database.SSLMode)
}

// getEnv получает environment variable или возвращает default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt получает environment variable как int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat получает environment variable как float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value float64
	if _, err := fmt.Sscanf(valueStr, "%g", &value); err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool получает environment variable как bool
func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
