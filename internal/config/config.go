package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 配置
type Config struct {
	Service     ServiceConfig          `yaml:"service" json:"service"`
	Postgres    PostgresConfig         `yaml:"postgres" json:"postgres"`
	Redis       RedisConfig            `yaml:"redis" json:"redis"`
	Kafka       KafkaConfig            `yaml:"kafka" json:"kafka"`
	Keystore    KeystoreConfig         `yaml:"keystore" json:"keystore"`
	Indexer     IndexerConfig          `yaml:"indexer" json:"indexer"`
	Sweep       SweepConfig            `yaml:"sweep" json:"sweep"`
	Withdraw    WithdrawConfig         `yaml:"withdraw" json:"withdraw"`
	BalanceSync BalanceSyncConfig      `yaml:"balance_sync" json:"balance_sync"`
	Scheduler   SchedulerConfig        `yaml:"scheduler" json:"scheduler"`
	Jobs        map[string]JobOverride `yaml:"jobs" json:"jobs"`
	Log         LogConfig              `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	MetricsPort int    `yaml:"metrics_port" json:"metrics_port"`
	Env         string `yaml:"env" json:"env"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Database        string `yaml:"database" json:"database"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	MaxConnections  int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DSN 拼接 PostgreSQL 连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers"`
	ClientID string   `yaml:"client_id" json:"client_id"`
	Enabled  bool     `yaml:"enabled" json:"enabled"`
}

// KeystoreConfig 私钥加密配置
type KeystoreConfig struct {
	// MasterKey AES-256 主密钥 (hex 编码 32 字节)
	MasterKey string `yaml:"master_key" json:"master_key"`
}

// IndexerConfig 区块浏览器余额查询配置
type IndexerConfig struct {
	// BaseURLs chain_id -> etherscan 兼容 API 地址
	BaseURLs       map[int64]string `yaml:"base_urls" json:"base_urls"`
	APIKey         string           `yaml:"api_key" json:"api_key"`
	TimeoutSeconds int              `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SweepConfig 归集配置
type SweepConfig struct {
	MaxConcurrent         int    `yaml:"max_concurrent" json:"max_concurrent"`
	GasTopUpAmount        string `yaml:"gas_topup_amount" json:"gas_topup_amount"`
	InterStepDelaySeconds int    `yaml:"inter_step_delay_seconds" json:"inter_step_delay_seconds"`
	ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds" json:"confirm_timeout_seconds"`
}

// WithdrawConfig 提现出账配置
type WithdrawConfig struct {
	BatchSize             int `yaml:"batch_size" json:"batch_size"`
	ConfirmTimeoutSeconds int `yaml:"confirm_timeout_seconds" json:"confirm_timeout_seconds"`
}

// BalanceSyncConfig 余额同步配置
type BalanceSyncConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
}

// JobOverride 单个任务的调度覆盖配置
type JobOverride struct {
	Cron    string `yaml:"cron" json:"cron"`
	Enabled *bool  `yaml:"enabled" json:"enabled"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换
	content := string(data)
	content = expandEnvVars(content)

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	// 设置默认值
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "heliox-custody"
	}
	if cfg.Service.MetricsPort == 0 {
		cfg.Service.MetricsPort = 9090
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 50
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 3600
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}

	if cfg.Indexer.TimeoutSeconds == 0 {
		cfg.Indexer.TimeoutSeconds = 10
	}

	if cfg.Sweep.MaxConcurrent == 0 {
		cfg.Sweep.MaxConcurrent = 5
	}
	if cfg.Sweep.GasTopUpAmount == "" {
		cfg.Sweep.GasTopUpAmount = "0.001"
	}
	if cfg.Sweep.InterStepDelaySeconds == 0 {
		cfg.Sweep.InterStepDelaySeconds = 3
	}
	if cfg.Sweep.ConfirmTimeoutSeconds == 0 {
		cfg.Sweep.ConfirmTimeoutSeconds = 300
	}

	if cfg.Withdraw.BatchSize == 0 {
		cfg.Withdraw.BatchSize = 50
	}
	if cfg.Withdraw.ConfirmTimeoutSeconds == 0 {
		cfg.Withdraw.ConfirmTimeoutSeconds = 300
	}

	if cfg.BalanceSync.BatchSize == 0 {
		cfg.BalanceSync.BatchSize = 200
	}

	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// validate 校验必填项
func validate(cfg *Config) error {
	if cfg.Keystore.MasterKey == "" {
		return fmt.Errorf("keystore.master_key is required")
	}
	if cfg.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	return nil
}

// GetEnvInt 获取环境变量整数值
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvString 获取环境变量字符串值
func GetEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
