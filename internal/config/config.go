package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string // 通知主题前缀，如 "ed/"
}

// BackendConfig CRUD 后端配置
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
	// 分配结果是否回写到后端
	WriteBack bool
}

// ScoringConfig 优先级评分配置（可由 YAML 覆盖）
type ScoringConfig struct {
	CriticalKeywords []string `yaml:"critical_keywords"`
	UrgentKeywords   []string `yaml:"urgent_keywords"`
}

// AllocatorConfig 分配器配置
type AllocatorConfig struct {
	Interval             time.Duration `yaml:"interval"`
	UtilizationThreshold float64       `yaml:"utilization_threshold"`
	EventQueueSize       int           `yaml:"event_queue_size"`
	MaxNotifications     int           `yaml:"max_notifications"`
}

// CacheConfig 看板缓存配置
type CacheConfig struct {
	BoardKey        string
	BoardTTL        int    // 秒
	EventStream     string // 分配事件 Redis Stream
	NotifyStream    string // 通知 Redis Stream
	StreamMaxLength int64
}

// Config 分配服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Backend  BackendConfig

	TenantID   string
	SeedSource string // mock, postgres, backend
	HTTPAddr   string

	Scoring   ScoringConfig
	Allocator AllocatorConfig
	Cache     CacheConfig

	Log struct {
		Level  string
		Format string
	}
}

// fileOverlay YAML 配置文件中允许覆盖的部分
type fileOverlay struct {
	Scoring   *ScoringConfig   `yaml:"scoring"`
	Allocator *AllocatorConfig `yaml:"allocator"`
}

// DefaultCriticalKeywords 危重主诉关键词（大小写敏感的子串匹配）
var DefaultCriticalKeywords = []string{"Chest Pain", "Stroke", "Trauma", "Respiratory Distress", "Unconscious"}

// DefaultUrgentKeywords 紧急主诉关键词
var DefaultUrgentKeywords = []string{"Fracture", "Severe Pain", "Bleeding", "Infection"}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 2)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-allocator")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "ed/")

	cfg.Backend.BaseURL = getEnv("BACKEND_BASE_URL", "")
	cfg.Backend.Timeout = time.Duration(getEnvInt("BACKEND_TIMEOUT_SEC", 10)) * time.Second
	cfg.Backend.WriteBack = getEnv("BACKEND_WRITE_BACK", "false") == "true"

	cfg.TenantID = getEnv("TENANT_ID", "")
	cfg.SeedSource = getEnv("SEED_SOURCE", "mock")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8090")

	cfg.Scoring.CriticalKeywords = append([]string(nil), DefaultCriticalKeywords...)
	cfg.Scoring.UrgentKeywords = append([]string(nil), DefaultUrgentKeywords...)

	cfg.Allocator.Interval = time.Duration(getEnvInt("ALLOC_INTERVAL_SEC", 30)) * time.Second
	cfg.Allocator.UtilizationThreshold = getEnvFloat("ALLOC_UTILIZATION_THRESHOLD", 0.8)
	cfg.Allocator.EventQueueSize = getEnvInt("EVENT_QUEUE_SIZE", 256)
	cfg.Allocator.MaxNotifications = getEnvInt("MAX_NOTIFICATIONS", 100)

	cfg.Cache.BoardKey = getEnv("CACHE_BOARD_KEY", "ed:board:")
	cfg.Cache.BoardTTL = getEnvInt("CACHE_BOARD_TTL", 120)
	cfg.Cache.EventStream = getEnv("CACHE_EVENT_STREAM", "ed:assignment-events")
	cfg.Cache.NotifyStream = getEnv("CACHE_NOTIFY_STREAM", "ed:notifications")
	cfg.Cache.StreamMaxLength = int64(getEnvInt("CACHE_STREAM_MAXLEN", 10000))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile 从 YAML 文件覆盖评分和分配器配置
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if overlay.Scoring != nil {
		if len(overlay.Scoring.CriticalKeywords) > 0 {
			c.Scoring.CriticalKeywords = overlay.Scoring.CriticalKeywords
		}
		if len(overlay.Scoring.UrgentKeywords) > 0 {
			c.Scoring.UrgentKeywords = overlay.Scoring.UrgentKeywords
		}
	}
	if a := overlay.Allocator; a != nil {
		if a.Interval > 0 {
			c.Allocator.Interval = a.Interval
		}
		if a.UtilizationThreshold > 0 {
			c.Allocator.UtilizationThreshold = a.UtilizationThreshold
		}
		if a.EventQueueSize > 0 {
			c.Allocator.EventQueueSize = a.EventQueueSize
		}
		if a.MaxNotifications > 0 {
			c.Allocator.MaxNotifications = a.MaxNotifications
		}
	}

	return nil
}

// Validate 校验配置；覆盖配置文件后需要重新调用
func (c *Config) Validate() error {
	if c.Allocator.Interval <= 0 {
		return fmt.Errorf("allocator interval must be positive")
	}
	if c.Allocator.UtilizationThreshold <= 0 || c.Allocator.UtilizationThreshold > 1 {
		return fmt.Errorf("utilization threshold must be in (0,1], got %v", c.Allocator.UtilizationThreshold)
	}
	if c.Allocator.EventQueueSize <= 0 {
		return fmt.Errorf("event queue size must be positive")
	}
	switch c.SeedSource {
	case "mock", "postgres":
	case "backend":
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("BACKEND_BASE_URL is required when SEED_SOURCE=backend")
		}
	default:
		return fmt.Errorf("unknown seed source: %s", c.SeedSource)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}
