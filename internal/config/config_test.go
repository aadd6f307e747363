package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "ed/", cfg.MQTT.TopicPrefix)

	assert.Equal(t, "mock", cfg.SeedSource)
	assert.Equal(t, ":8090", cfg.HTTPAddr)

	assert.Equal(t, 30*time.Second, cfg.Allocator.Interval)
	assert.Equal(t, 0.8, cfg.Allocator.UtilizationThreshold)
	assert.Equal(t, 256, cfg.Allocator.EventQueueSize)
	assert.Equal(t, DefaultCriticalKeywords, cfg.Scoring.CriticalKeywords)
	assert.Equal(t, DefaultUrgentKeywords, cfg.Scoring.UrgentKeywords)

	assert.Equal(t, "ed:board:", cfg.Cache.BoardKey)
	assert.Equal(t, 120, cfg.Cache.BoardTTL)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("TENANT_ID", "test-tenant")
	t.Setenv("ALLOC_INTERVAL_SEC", "5")
	t.Setenv("ALLOC_UTILIZATION_THRESHOLD", "0.9")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "test-tenant", cfg.TenantID)
	assert.Equal(t, 5*time.Second, cfg.Allocator.Interval)
	assert.Equal(t, 0.9, cfg.Allocator.UtilizationThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	os.Clearenv()
	t.Setenv("ALLOC_UTILIZATION_THRESHOLD", "1.5")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "utilization threshold")
}

func TestLoad_BackendSeedRequiresURL(t *testing.T) {
	os.Clearenv()
	t.Setenv("SEED_SOURCE", "backend")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_BASE_URL")
}

func TestLoad_ConfigFileOverlay(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "allocator.yaml")
	content := `
scoring:
  critical_keywords: ["Cardiac Arrest", "Trauma"]
allocator:
  interval: 10s
  utilization_threshold: 0.75
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Cardiac Arrest", "Trauma"}, cfg.Scoring.CriticalKeywords)
	assert.Equal(t, DefaultUrgentKeywords, cfg.Scoring.UrgentKeywords)
	assert.Equal(t, 10*time.Second, cfg.Allocator.Interval)
	assert.Equal(t, 0.75, cfg.Allocator.UtilizationThreshold)
}

func TestLoadFile_InvalidThresholdRejected(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "allocator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allocator:\n  utilization_threshold: 1.5\n"), 0o600))
	require.NoError(t, cfg.LoadFile(path))

	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "utilization threshold")

	// 通过 CONFIG_FILE 加载时同样校验
	t.Setenv("CONFIG_FILE", path)
	_, err = Load()
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, "default-value", getEnv("TEST_KEY", "default-value"))

	t.Setenv("TEST_KEY", "env-value")
	assert.Equal(t, "env-value", getEnv("TEST_KEY", "default-value"))

	t.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "ed", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ed sslmode=disable", c.GetDSN())
}
