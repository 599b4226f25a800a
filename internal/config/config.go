package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Loyalty  LoyaltyConfig  `mapstructure:"loyalty"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"`
	// 写接口每个客户端每分钟请求数，0 表示不限流
	RateLimitPerMinute float64 `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Env   string `mapstructure:"env"`
	// File 非空时日志同时写入滚动文件
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	ConsumerGroup string           `mapstructure:"consumer_group"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderEvents  string `mapstructure:"order_events"`
	Notification string `mapstructure:"notification"`
}

type BusinessConfig struct {
	MaxRetryCount        int `mapstructure:"max_retry_count"`
	LockTTLSeconds       int `mapstructure:"lock_ttl_seconds"`
	OutboxIntervalMillis int `mapstructure:"outbox_interval_millis"`
	OutboxBatchSize      int `mapstructure:"outbox_batch_size"`
}

// LockTTL 分布式锁过期时间
func (b BusinessConfig) LockTTL() time.Duration {
	if b.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.LockTTLSeconds) * time.Second
}

// OutboxInterval 消息发送轮询间隔
func (b BusinessConfig) OutboxInterval() time.Duration {
	if b.OutboxIntervalMillis <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(b.OutboxIntervalMillis) * time.Millisecond
}

// LoyaltyConfig 积分规则相关配置
//
// Rules / Tiers / Rewards 仅用于初始化空表，运行时以数据库为准
type LoyaltyConfig struct {
	Timezone string       `mapstructure:"timezone"`
	Rules    []RuleSeed   `mapstructure:"rules"`
	Tiers    []TierSeed   `mapstructure:"tiers"`
	Rewards  []RewardSeed `mapstructure:"rewards"`
}

// Location 解析积分计算使用的时区，默认 UTC
func (l LoyaltyConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(l.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	return loc, nil
}

type RuleSeed struct {
	Name       string `mapstructure:"name"`
	RuleType   string `mapstructure:"rule_type"`
	IsActive   bool   `mapstructure:"is_active"`
	Points     int64  `mapstructure:"points"`
	PerAmount  string `mapstructure:"per_amount"`
	Amount     string `mapstructure:"amount"`
	ProductID  string `mapstructure:"product_id"`
	DayOfWeek  *int   `mapstructure:"day_of_week"`
	Multiplier string `mapstructure:"multiplier"`
}

type TierSeed struct {
	Name      string `mapstructure:"name"`
	MinPoints int64  `mapstructure:"min_points"`
	Icon      string `mapstructure:"icon"`
}

type RewardSeed struct {
	RewardID  string `mapstructure:"reward_id"`
	Name      string `mapstructure:"name"`
	PointCost int64  `mapstructure:"point_cost"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
//
// 环境变量可覆盖文件配置，例如 LOYALTY_MYSQL_PASSWORD
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("loyalty")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("kafka.consumer_group", "loyalty-engine")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("loyalty.timezone", "UTC")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if _, err := cfg.Loyalty.Location(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}
