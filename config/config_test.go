package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_NAME", "accounts")
	t.Setenv("DB_USERNAME", "user")
}

func TestLoadSuccess(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com")
	t.Setenv("VALKEY_DB", "2")
	t.Setenv("PROFILE_CACHE_TTL", "90s")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc, tenant = t1")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "prod", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "require", cfg.DB.SSLMode)
	assert.False(t, cfg.DB.AutoMigrate)
	assert.Equal(t, []string{"http://a.com", "http://b.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2, cfg.Valkey.DB)
	assert.Equal(t, 90*time.Second, cfg.Profile.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Profile.StoreTimeout)
	assert.Equal(t, []byte("secret"), cfg.Auth.AccessTokenSecret)
	assert.Equal(t, map[string]string{"x-api-key": "abc", "tenant": "t1"}, cfg.Telemetry.OTLPHeaders)
	assert.False(t, cfg.Telemetry.OTLPInsecure)
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.True(t, cfg.DB.AutoMigrate)
	assert.Equal(t, 300*time.Second, cfg.Profile.CacheTTL)
	assert.Equal(t, "user_profile_", cfg.Profile.CacheKeyPrefix)
	assert.Equal(t, 5*time.Second, cfg.Profile.StoreTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Profile.CacheTimeout)
	assert.Equal(t, "localhost:6379", cfg.Valkey.Addr)
	assert.Empty(t, cfg.Auth.AccessTokenSecret)
	assert.Equal(t, "access_token", cfg.Auth.AccessCookieName)
	assert.Equal(t, "accounts-service", cfg.Telemetry.ServiceName)
}

func TestLoadUsesInstanceIdentifier(t *testing.T) {
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_INSTANCE_IDENTIFIER", "instance-id")
	t.Setenv("DB_USERNAME", "user")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "instance-id", cfg.DB.Name)
}

func TestLoadInvalidCacheTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROFILE_CACHE_TTL", "not-a-duration")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PROFILE_CACHE_TTL", "0s")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadInvalidTimeouts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("CACHE_TIMEOUT", "later")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("CACHE_TIMEOUT", "")
	t.Setenv("DB_CONNECT_TIMEOUT", "never")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadNonPositiveTimeouts(t *testing.T) {
	for _, key := range []string{"STORE_TIMEOUT", "CACHE_TIMEOUT"} {
		for _, value := range []string{"0s", "-1s"} {
			t.Run(key+"="+value, func(t *testing.T) {
				setRequiredEnv(t)
				t.Setenv(key, value)
				_, err := Load()
				assert.EqualError(t, err, key+" must be positive")
			})
		}
	}
}

func TestLoadInvalidValkeyDB(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALKEY_DB", "not-an-int")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadInvalidValkeyMaxIdle(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALKEY_MAX_IDLE", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingDatabaseConfig(t *testing.T) {
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_INSTANCE_IDENTIFIER", "")
	t.Setenv("DB_USERNAME", "")
	_, err := Load()
	assert.Error(t, err)
}
