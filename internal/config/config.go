package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        *AppConfig        `yaml:"app"`
	Database   *DatabaseConfig   `yaml:"database"`
	Redis      *RedisConfig      `yaml:"redis"`
	SMS        *SMSConfig        `yaml:"sms"`
	Push       *PushConfig       `yaml:"push"`
	Payment    *PaymentConfig    `yaml:"payment"`
	Maps       *MapsConfig       `yaml:"maps"`
	Storage    *StorageConfig    `yaml:"storage"`
	WebSocket  *WebSocketConfig  `yaml:"websocket"`
	Chat       *ChatConfig       `yaml:"chat"`
	Security   *SecurityConfig   `yaml:"security"`
	Monitoring *MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	BaseURL     string `yaml:"base_url"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Timezone    string `yaml:"timezone"`
}

type SecurityConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	JWTIssuer          string        `yaml:"jwt_issuer"`
	JWTAccessTokenTTL  time.Duration `yaml:"jwt_access_token_ttl"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	TrustedProxies     []string      `yaml:"trusted_proxies"`
	// InternalAPIKey guards the trusted payment status callback.
	InternalAPIKey string `yaml:"internal_api_key"`
}

type MonitoringConfig struct {
	NewRelicEnabled    bool   `yaml:"newrelic_enabled"`
	NewRelicAppName    string `yaml:"newrelic_app_name"`
	NewRelicLicenseKey string `yaml:"newrelic_license_key"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		App:        loadAppConfig(),
		Database:   loadDatabaseConfig(),
		Redis:      loadRedisConfig(),
		SMS:        loadSMSConfig(),
		Push:       loadPushConfig(),
		Payment:    loadPaymentConfig(),
		Maps:       loadMapsConfig(),
		Storage:    loadStorageConfig(),
		WebSocket:  loadWebSocketConfig(),
		Chat:       loadChatConfig(),
		Security:   loadSecurityConfig(),
		Monitoring: loadMonitoringConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

type validator interface {
	validate() error
}

func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if IsProduction() && c.Security.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed in production")
	}
	sections := []validator{c.Database, c.Redis, c.SMS, c.Push, c.Payment, c.Maps, c.Storage, c.WebSocket, c.Chat}
	for _, section := range sections {
		if err := section.validate(); err != nil {
			return err
		}
	}
	return nil
}

const defaultJWTSecret = "your-super-secret-jwt-key"

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:        getEnv("APP_NAME", "tripchat"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvAsInt("APP_PORT", 8080),
		Host:        getEnv("APP_HOST", "localhost"),
		BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		Debug:       getEnvAsBool("APP_DEBUG", true),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Timezone:    getEnv("APP_TIMEZONE", "UTC"),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:          getEnv("JWT_ISSUER", "tripchat"),
		JWTAccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
		InternalAPIKey:     getEnv("INTERNAL_API_KEY", ""),
	}
}

func loadMonitoringConfig() *MonitoringConfig {
	return &MonitoringConfig{
		NewRelicEnabled:    getEnvAsBool("NEW_RELIC_ENABLED", false),
		NewRelicAppName:    getEnv("NEW_RELIC_APP_NAME", "tripchat"),
		NewRelicLicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
	}
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}

func IsTest() bool {
	return getEnv("APP_ENV", "development") == "test"
}
