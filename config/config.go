package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Queue     QueueConfig      `mapstructure:"queue"`
	Limiter   LimiterConfig    `mapstructure:"limiter"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Grading   GradingConfig    `mapstructure:"grading"`
	Upload    UploadConfig     `mapstructure:"upload"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type QueueConfig struct {
	GradingQueue   string `mapstructure:"grading_queue"`
	MaxWorkers     int    `mapstructure:"max_workers"`
	StaggerSeconds int    `mapstructure:"stagger_seconds"` // 批量任务错峰间隔
	LeaseSeconds   int    `mapstructure:"lease_seconds"`   // 任务租约 TTL
}

// LimiterConfig 并发限制配置
// 容量解析顺序：providers 中的显式覆盖 > overrides_json > 类别默认值
type LimiterConfig struct {
	Mode                  string         `mapstructure:"mode"` // local 或 redis
	AcquireTimeoutSeconds int            `mapstructure:"acquire_timeout_seconds"`
	SlotTTLSeconds        int            `mapstructure:"slot_ttl_seconds"`
	CloudDefault          int            `mapstructure:"cloud_default"`
	LocalDefault          int            `mapstructure:"local_default"`
	OverridesJSON         string         `mapstructure:"overrides_json"` // {"openai": 10, ...}
	Providers             map[string]int `mapstructure:"providers"`
}

type ProviderConfig struct {
	Name           string `mapstructure:"name"`
	Class          string `mapstructure:"class"` // cloud 或 local
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	DefaultModel   string `mapstructure:"default_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type GradingConfig struct {
	DefaultTemperature float64 `mapstructure:"default_temperature"`
	DefaultMaxTokens   int     `mapstructure:"default_max_tokens"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	TempDir           string   `mapstructure:"temp_dir"`           // 上传文件目录
	ExpireHours       int      `mapstructure:"expire_hours"`       // 过期时间（小时）
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // 允许的扩展名
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
