package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	pkgconfig "github.com/parser06/first-responder-risk/pkg/config"
)

// Config 服务完整配置, 全部来自环境变量
type Config struct {
	Database pkgconfig.DatabaseConfig
	Redis    pkgconfig.RedisConfig
	MQTT     MQTTIngestConfig
	Monitor  MonitorConfig
	Log      LogConfig
}

// MQTTIngestConfig 设备侧 MQTT 接入, Enabled=false 时不启动桥接
type MQTTIngestConfig struct {
	Enabled bool
	Broker  pkgconfig.MQTTConfig
	Topic   string
}

// MonitorConfig 风险监测核心配置
type MonitorConfig struct {
	WindowSize int // 每个警员的滑动窗口样本数
	MinSamples int // 低于该数量时输出默认特征向量
	DefaultAge int // 未设置档案时的默认年龄

	Risk     RiskConfig
	Streams  StreamsConfig
	Cache    CacheConfig
	Model    ModelConfig
	Webhook  WebhookConfig
	Eviction EvictionConfig
}

// RiskConfig 多因子评分的分级阈值
type RiskConfig struct {
	HighThreshold   float64
	MediumThreshold float64
}

// StreamsConfig Redis Stream 主题与消费组
type StreamsConfig struct {
	Samples     string
	Profiles    string
	Snapshots   string
	Assessments string
	Group       string
	Consumer    string
	BatchSize   int64
	BlockTime   time.Duration
	MaxLen      int64
}

// CacheConfig 评估结果缓存键与过期时间
type CacheConfig struct {
	KeyPrefix string
	KeySuffix string
	TTL       time.Duration
}

// ModelConfig 模型持久化路径与异常判定阈值
type ModelConfig struct {
	Path             string
	AnomalyThreshold float64
}

// WebhookConfig 高风险事件通知, URL 为空时禁用
type WebhookConfig struct {
	URL        string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// EvictionConfig 空闲警员条目淘汰
type EvictionConfig struct {
	MaxIdle       time.Duration
	SweepInterval time.Duration
}

// LogConfig 日志级别与格式
type LogConfig struct {
	Level  string
	Format string
}

// Load 从环境变量加载配置并校验
func Load() (*Config, error) {
	cfg := &Config{
		Database: pkgconfig.DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "responder_risk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: pkgconfig.RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQTT: MQTTIngestConfig{
			Enabled: getEnvBool("MQTT_ENABLED", false),
			Broker: pkgconfig.MQTTConfig{
				Broker:   getEnv("MQTT_BROKER", "localhost"),
				Port:     getEnvInt("MQTT_PORT", 1883),
				Username: getEnv("MQTT_USERNAME", ""),
				Password: getEnv("MQTT_PASSWORD", ""),
				ClientID: getEnv("MQTT_CLIENT_ID", "responder-risk"),
				QoS:      byte(getEnvInt("MQTT_QOS", 1)),
			},
			Topic: getEnv("MQTT_TOPIC", "responder/+/vitals"),
		},
		Monitor: MonitorConfig{
			WindowSize: getEnvInt("MONITOR_WINDOW_SIZE", 60),
			MinSamples: getEnvInt("MONITOR_MIN_SAMPLES", 10),
			DefaultAge: getEnvInt("MONITOR_DEFAULT_AGE", 30),
			Risk: RiskConfig{
				HighThreshold:   getEnvFloat("RISK_HIGH_THRESHOLD", 0.7),
				MediumThreshold: getEnvFloat("RISK_MEDIUM_THRESHOLD", 0.4),
			},
			Streams: StreamsConfig{
				Samples:     getEnv("STREAM_SAMPLES", "responder:vitals:stream"),
				Profiles:    getEnv("STREAM_PROFILES", "responder:profiles:stream"),
				Snapshots:   getEnv("STREAM_SNAPSHOTS", "responder:snapshots:stream"),
				Assessments: getEnv("STREAM_ASSESSMENTS", "responder:assessments:stream"),
				Group:       getEnv("STREAM_GROUP", "responder-risk-group"),
				Consumer:    getEnv("STREAM_CONSUMER", "responder-risk-consumer"),
				BatchSize:   int64(getEnvInt("STREAM_BATCH_SIZE", 10)),
				BlockTime:   time.Duration(getEnvInt("STREAM_BLOCK_MS", 5000)) * time.Millisecond,
				MaxLen:      int64(getEnvInt("STREAM_MAX_LEN", 10000)),
			},
			Cache: CacheConfig{
				KeyPrefix: getEnv("CACHE_KEY_PREFIX", "responder-risk:officer:"),
				KeySuffix: getEnv("CACHE_KEY_SUFFIX", ":assessment"),
				TTL:       time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
			},
			Model: ModelConfig{
				Path:             getEnv("MODEL_PATH", "./models/risk_model.json"),
				AnomalyThreshold: getEnvFloat("MODEL_ANOMALY_THRESHOLD", -0.1),
			},
			Webhook: WebhookConfig{
				URL:        getEnv("WEBHOOK_URL", ""),
				Timeout:    time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
				RetryCount: getEnvInt("WEBHOOK_RETRY_COUNT", 2),
				RetryWait:  time.Duration(getEnvInt("WEBHOOK_RETRY_WAIT_SECONDS", 1)) * time.Second,
			},
			Eviction: EvictionConfig{
				MaxIdle:       time.Duration(getEnvInt("EVICT_MAX_IDLE_MINUTES", 30)) * time.Minute,
				SweepInterval: time.Duration(getEnvInt("EVICT_SWEEP_MINUTES", 5)) * time.Minute,
			},
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验必填项与取值范围
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if c.Monitor.WindowSize <= 0 {
		return fmt.Errorf("monitor window size must be positive, got %d", c.Monitor.WindowSize)
	}
	if c.Monitor.MinSamples <= 0 {
		return fmt.Errorf("monitor min samples must be positive, got %d", c.Monitor.MinSamples)
	}
	if c.Monitor.Risk.MediumThreshold <= 0 || c.Monitor.Risk.HighThreshold <= c.Monitor.Risk.MediumThreshold {
		return fmt.Errorf("risk thresholds must satisfy 0 < medium < high, got medium=%.2f high=%.2f",
			c.Monitor.Risk.MediumThreshold, c.Monitor.Risk.HighThreshold)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.Log.Format)
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
