package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv    string
	Port      string
	DB        DatabaseConfig
	Valkey    ValkeyConfig
	Profile   ProfileConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	Engine         string
	Host           string
	Port           string
	Name           string
	Username       string
	Password       string
	SSLMode        string
	ConnectTimeout time.Duration
	AutoMigrate    bool
}

type ValkeyConfig struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	MaxIdle     int
	IdleTimeout time.Duration
}

// ProfileConfig controls the profile cache-aside layer.
type ProfileConfig struct {
	CacheTTL       time.Duration
	CacheKeyPrefix string
	StoreTimeout   time.Duration
	CacheTimeout   time.Duration
}

// AuthConfig is only used to verify tokens issued elsewhere. An empty
// AccessTokenSecret disables token verification.
type AuthConfig struct {
	AccessTokenSecret []byte
	Issuer            string
	AccessCookieName  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type TelemetryConfig struct {
	ServiceName          string
	ServiceVersion       string
	OTLPEndpoint         string
	OTLPTracesEndpoint   string
	OTLPMetricsEndpoint  string
	OTLPProtocol         string
	OTLPHeaders          map[string]string
	OTLPInsecure         bool
	ExportTimeout        time.Duration
	MetricExportInterval time.Duration
}

func Load() (Config, error) {
	appEnv := getEnv("APP_ENV", "dev")
	port := getEnv("APP_PORT", "8080")

	dbName := getEnv("DB_NAME", "")
	if dbName == "" {
		dbName = os.Getenv("DB_INSTANCE_IDENTIFIER")
	}

	connectTimeout, err := getEnvDuration("DB_CONNECT_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}

	dbSSLMode := getEnv("DB_SSLMODE", "")
	if dbSSLMode == "" {
		if appEnv == "prod" {
			dbSSLMode = "require"
		} else {
			dbSSLMode = "disable"
		}
	}

	valkeyDB, err := strconv.Atoi(getEnv("VALKEY_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid VALKEY_DB: %w", err)
	}
	valkeyMaxIdle, err := strconv.Atoi(getEnv("VALKEY_MAX_IDLE", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid VALKEY_MAX_IDLE: %w", err)
	}
	valkeyIdleTimeout, err := getEnvDuration("VALKEY_IDLE_TIMEOUT", "240s")
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := getEnvDuration("PROFILE_CACHE_TTL", "300s")
	if err != nil {
		return Config{}, err
	}
	if cacheTTL <= 0 {
		return Config{}, errors.New("PROFILE_CACHE_TTL must be positive")
	}
	storeTimeout, err := getEnvDuration("STORE_TIMEOUT", "5s")
	if err != nil {
		return Config{}, err
	}
	if storeTimeout <= 0 {
		return Config{}, errors.New("STORE_TIMEOUT must be positive")
	}
	cacheTimeout, err := getEnvDuration("CACHE_TIMEOUT", "500ms")
	if err != nil {
		return Config{}, err
	}
	if cacheTimeout <= 0 {
		return Config{}, errors.New("CACHE_TIMEOUT must be positive")
	}

	exportTimeout, err := getEnvDuration("OTEL_EXPORTER_OTLP_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	metricInterval, err := getEnvDuration("OTEL_METRIC_EXPORT_INTERVAL", "60s")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv: appEnv,
		Port:   port,
		DB: DatabaseConfig{
			Engine:         getEnv("DB_ENGINE", "postgres"),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Name:           dbName,
			Username:       getEnv("DB_USERNAME", ""),
			Password:       getEnv("DB_PASSWORD", ""),
			SSLMode:        dbSSLMode,
			ConnectTimeout: connectTimeout,
			AutoMigrate:    getEnvBool("DB_AUTO_MIGRATE", appEnv != "prod"),
		},
		Valkey: ValkeyConfig{
			Addr:        getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:    getEnv("VALKEY_PASSWORD", ""),
			DB:          valkeyDB,
			Prefix:      getEnv("VALKEY_PREFIX", ""),
			MaxIdle:     valkeyMaxIdle,
			IdleTimeout: valkeyIdleTimeout,
		},
		Profile: ProfileConfig{
			CacheTTL:       cacheTTL,
			CacheKeyPrefix: getEnv("PROFILE_CACHE_KEY_PREFIX", "user_profile_"),
			StoreTimeout:   storeTimeout,
			CacheTimeout:   cacheTimeout,
		},
		Auth: AuthConfig{
			AccessTokenSecret: []byte(os.Getenv("JWT_ACCESS_SECRET")),
			Issuer:            getEnv("JWT_ISSUER", "auth-service"),
			AccessCookieName:  getEnv("AUTH_ACCESS_COOKIE_NAME", "access_token"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Telemetry: TelemetryConfig{
			ServiceName:          getEnv("OTEL_SERVICE_NAME", "accounts-service"),
			ServiceVersion:       getEnv("OTEL_SERVICE_VERSION", "dev"),
			OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPTracesEndpoint:   getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""),
			OTLPMetricsEndpoint:  getEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", ""),
			OTLPProtocol:         getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			OTLPHeaders:          parseHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", "")),
			OTLPInsecure:         getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", appEnv != "prod"),
			ExportTimeout:        exportTimeout,
			MetricExportInterval: metricInterval,
		},
	}

	if cfg.DB.Name == "" || cfg.DB.Username == "" {
		return Config{}, errors.New("DB_NAME (or DB_INSTANCE_IDENTIFIER) and DB_USERNAME must be set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key, fallback string) (time.Duration, error) {
	value, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	var results []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

// parseHeaders reads the OTEL "k1=v1,k2=v2" header list.
func parseHeaders(value string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range parseCSV(value) {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}
