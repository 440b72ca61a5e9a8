package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`   // 服务器配置
	Postgres PostgresConfig          `mapstructure:"postgres"` // PostgreSQL配置
	Ingest   IngestConfig            `mapstructure:"ingest"`   // 采集调度配置
	Geocoder GeocoderConfig          `mapstructure:"geocoder"` // 地理编码配置
	Sources  map[string]SourceConfig `mapstructure:"sources"`  // 各来源独立配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// IngestConfig 采集调度配置
type IngestConfig struct {
	Secret           string   `mapstructure:"secret"`             // 触发接口共享密钥
	StaleLockMinutes int      `mapstructure:"stale_lock_minutes"` // running 锁过期窗口（分钟），默认60
	EnabledSources   []string `mapstructure:"enabled_sources"`    // 启用的来源列表
	MaxErrorDetails  int      `mapstructure:"max_error_details"`  // 响应中错误详情条数上限，默认10
}

// StaleLockAfter running 锁过期窗口
func (c *IngestConfig) StaleLockAfter() time.Duration {
	if c.StaleLockMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.StaleLockMinutes) * time.Minute
}

// GeocoderConfig 地理编码服务配置（Nominatim 风格接口）
type GeocoderConfig struct {
	BaseURL   string `mapstructure:"base_url"`   // API基础地址
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	UserAgent string `mapstructure:"user_agent"` // 请求UA（公共服务要求）
	CacheSize int    `mapstructure:"cache_size"` // 内存缓存条数上限
}

// SourceConfig 单个来源的独立配置
type SourceConfig struct {
	BaseURL     string `mapstructure:"base_url"`      // 站点/API基础地址
	Timeout     int    `mapstructure:"timeout"`       // 请求超时（秒）
	RetryCount  int    `mapstructure:"retry_count"`   // 重试次数
	Pages       int    `mapstructure:"pages"`         // 最多翻页数
	PageDelayMs int    `mapstructure:"page_delay_ms"` // 两次请求间隔（毫秒），避免压垮来源站点
	City        string `mapstructure:"city"`          // 采集的目标城市
	Proxy       string `mapstructure:"proxy"`         // 代理地址
}

// PageDelay 两次请求间隔，默认300ms
func (c *SourceConfig) PageDelay() time.Duration {
	if c.PageDelayMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("INGEST_SECRET"); v != "" {
		cfg.Ingest.Secret = v
	}
	if v := os.Getenv("GEOCODER_BASE_URL"); v != "" {
		cfg.Geocoder.BaseURL = v
	}
	if s, ok := cfg.Sources["gigfeed"]; ok {
		if v := os.Getenv("GIGFEED_PROXY"); v != "" {
			s.Proxy = v
		}
		cfg.Sources["gigfeed"] = s
	}
	if s, ok := cfg.Sources["cityagenda"]; ok {
		if v := os.Getenv("CITYAGENDA_PROXY"); v != "" {
			s.Proxy = v
		}
		cfg.Sources["cityagenda"] = s
	}
}
