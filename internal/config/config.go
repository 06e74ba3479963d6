package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
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
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 轨迹采集服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 轨迹流订阅配置
	Stream struct {
		// 根主题，如 "gps"。事件主题为 {Root}/point-added/# 和 {Root}/point-changed/#
		TopicRoot string
		// 最大重连次数，超过后停止自动重连
		MaxReconnectAttempts int
		// 重连基础延迟（第 n 次重连延迟为 n * BaseReconnectDelay）
		BaseReconnectDelay time.Duration
		// 单个监听器注册失败后的重试延迟
		ListenerRetryDelay time.Duration
	}

	// 入库重试配置
	Retry struct {
		MaxAttempts int
		BaseDelay   time.Duration
	}

	// 指标服务端口
	MetricsPort string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "tripsync")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "tracking-ingestor-1")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Stream.TopicRoot = getEnv("STREAM_TOPIC_ROOT", "gps")
	cfg.Stream.MaxReconnectAttempts = getEnvInt("STREAM_MAX_RECONNECT_ATTEMPTS", 10)
	cfg.Stream.BaseReconnectDelay = getEnvDuration("STREAM_BASE_RECONNECT_DELAY", 5*time.Second)
	cfg.Stream.ListenerRetryDelay = getEnvDuration("STREAM_LISTENER_RETRY_DELAY", 2*time.Second)

	cfg.Retry.MaxAttempts = getEnvInt("INGEST_RETRY_MAX_ATTEMPTS", 3)
	cfg.Retry.BaseDelay = getEnvDuration("INGEST_RETRY_BASE_DELAY", time.Second)

	cfg.MetricsPort = getEnv("METRICS_PORT", "9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
