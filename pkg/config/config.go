// Package config 提供 TOML 配置加载与环境变量覆盖。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 市场数据服务配置。
type Config struct {
	// 服务配置
	Server ServerConfig `mapstructure:"server"`
	// 日志配置
	Log LogConfig `mapstructure:"log"`
	// 数据层配置
	Data DataConfig `mapstructure:"data"`
	// 外部数据源配额
	Quota QuotaConfig `mapstructure:"quota"`
	// 缓存分层配置
	Cache CacheConfig `mapstructure:"cache"`
	// 外部行情数据源
	Provider ProviderConfig `mapstructure:"provider"`
	// 后台刷新任务
	Refresh RefreshConfig `mapstructure:"refresh"`
	// Kafka 事件
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// HTTP 入口限流
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	// 服务名称
	Name string `mapstructure:"name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 监听端口
	HTTPPort int `mapstructure:"http_port"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别：debug, info, warn, error
	Level string `mapstructure:"level"`
	// 输出格式：json 或 text
	Format string `mapstructure:"format"`
	// 输出目标：stdout, file, both
	Output string `mapstructure:"output"`
	// 日志文件路径
	FilePath string `mapstructure:"file_path"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age"`
	// 是否压缩
	Compress bool `mapstructure:"compress"`
}

// DataConfig 数据层配置
type DataConfig struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host"`
	// 端口
	Port int `mapstructure:"port"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// QuotaConfig 外部数据源配额。免费档典型值：5 次/分钟，500 次/天。
type QuotaConfig struct {
	// 分钟窗容量
	PerMinute int `mapstructure:"per_minute"`
	// 日窗容量
	PerDay int `mapstructure:"per_day"`
}

// CacheConfig 缓存分层配置
type CacheConfig struct {
	// 日内数据热层 TTL（秒）
	HotTTLSubDaily int `mapstructure:"hot_ttl_sub_daily"`
	// 日线数据热层 TTL（秒）
	HotTTLDaily int `mapstructure:"hot_ttl_daily"`
	// 日内数据温层保留天数，日线数据永久保留
	WarmRetentionDays int `mapstructure:"warm_retention_days"`
}

// ProviderConfig 外部行情数据源配置
type ProviderConfig struct {
	// 适配器类型：alphavantage, memory
	Driver string `mapstructure:"driver"`
	// API 基础地址
	BaseURL string `mapstructure:"base_url"`
	// API Key
	APIKey string `mapstructure:"api_key"`
	// 单次调用超时（秒）
	Timeout int `mapstructure:"timeout"`
	// 瞬态故障最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 调用方订阅档位：free, premium
	Capability string `mapstructure:"capability"`
}

// RefreshConfig 后台刷新任务配置
type RefreshConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// 触发间隔（秒）
	Interval int `mapstructure:"interval"`
	// 陈旧阈值（秒），超过该时长未刷新的条目才会被处理
	StalenessThreshold int `mapstructure:"staleness_threshold"`
	// 单次任务处理条目上限
	BatchSize int `mapstructure:"batch_size"`
	// 批间延迟（毫秒）
	BatchDelay int `mapstructure:"batch_delay"`
	// 单次任务等待配额回填的时长上限（秒）
	MaxQuotaWait int `mapstructure:"max_quota_wait"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用事件发布
	Enabled bool `mapstructure:"enabled"`
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 写重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
}

// RateLimitConfig HTTP 入口限流配置
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// 每秒请求数
	QPS int `mapstructure:"qps"`
	// 突发容量
	Burst int `mapstructure:"burst"`
}

// HotTTL 返回指定粒度的热层 TTL。
func (c CacheConfig) HotTTL(subDaily bool) time.Duration {
	if subDaily {
		return time.Duration(c.HotTTLSubDaily) * time.Second
	}
	return time.Duration(c.HotTTLDaily) * time.Second
}

// Validate 校验配置。
func (c *Config) Validate() error {
	if c.Quota.PerMinute <= 0 || c.Quota.PerDay <= 0 {
		return fmt.Errorf("quota windows must be positive: per_minute=%d per_day=%d", c.Quota.PerMinute, c.Quota.PerDay)
	}
	if c.Refresh.BatchSize <= 0 {
		return fmt.Errorf("refresh batch_size must be positive: %d", c.Refresh.BatchSize)
	}
	if c.Provider.Driver == "alphavantage" && c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key is required for driver %q", c.Provider.Driver)
	}
	return nil
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀的环境变量覆盖。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "marketdata")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("data.database.max_open_conns", 25)
	v.SetDefault("data.database.max_idle_conns", 5)
	v.SetDefault("data.database.conn_max_lifetime", 300)
	v.SetDefault("data.redis.host", "localhost")
	v.SetDefault("data.redis.port", 6379)
	v.SetDefault("data.redis.max_pool_size", 10)
	v.SetDefault("data.redis.read_timeout", 3)
	v.SetDefault("data.redis.write_timeout", 3)
	v.SetDefault("quota.per_minute", 5)
	v.SetDefault("quota.per_day", 500)
	v.SetDefault("cache.hot_ttl_sub_daily", 900)
	v.SetDefault("cache.hot_ttl_daily", 21600)
	v.SetDefault("cache.warm_retention_days", 30)
	v.SetDefault("provider.driver", "alphavantage")
	v.SetDefault("provider.timeout", 5)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.capability", "free")
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", 86400)
	v.SetDefault("refresh.staleness_threshold", 43200)
	v.SetDefault("refresh.batch_size", 50)
	v.SetDefault("refresh.batch_delay", 200)
	v.SetDefault("refresh.max_quota_wait", 300)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.qps", 20)
	v.SetDefault("rate_limit.burst", 40)
}
