package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env           string              `mapstructure:"env"` // 环境: development, production
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	OpenFGA       OpenFGAConfig       `mapstructure:"openfga"`
	Keycloak      KeycloakConfig      `mapstructure:"keycloak"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Log           LogConfig           `mapstructure:"log"`
	Certificate   CertificateConfig   `mapstructure:"certificate"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Authorization AuthorizationConfig `mapstructure:"authorization"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	RateLimit float64 `mapstructure:"rate_limit"` // 每秒请求数, 0 表示不限流
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Path            string `mapstructure:"path"`   // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	Backend  string   `mapstructure:"backend"` // local, s3
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config S3 存储配置
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // 兼容 MinIO 等
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// OpenFGAConfig OpenFGA 配置
type OpenFGAConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIURL   string `mapstructure:"api_url"`
	StoreID  string `mapstructure:"store_id"`
	ModelID  string `mapstructure:"model_id"`
	CacheTTL int    `mapstructure:"cache_ttl"` // 秒
}

// KeycloakConfig Keycloak 配置
type KeycloakConfig struct {
	Issuer      string `mapstructure:"issuer"`
	JWKSURL     string `mapstructure:"jwks_url"`
	TenantClaim string `mapstructure:"tenant_claim"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
}

// CertificateConfig 证书配置
type CertificateConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	CodeLength    int     `mapstructure:"code_length"`
	PageWidth     float64 `mapstructure:"page_width"`  // 毫米
	PageHeight    float64 `mapstructure:"page_height"` // 毫米
	SelectorLimit int     `mapstructure:"selector_limit"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	PostmarkServerToken  string `mapstructure:"postmark_server_token"`
	PostmarkAccountToken string `mapstructure:"postmark_account_token"`
	SenderEmail          string `mapstructure:"sender_email"`
	SupportEmail         string `mapstructure:"support_email"`
}

// AuthorizationConfig 基于角色的能力配置
type AuthorizationConfig struct {
	Roles map[string][]string `mapstructure:"roles"` // 角色 -> 能力列表
}

// TracingConfig 追踪配置
type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"` // 根 span 采样比例,0 到 1
}

// Enabled 配置了 Jaeger 地址才启用追踪
func (c TracingConfig) Enabled() bool {
	return c.JaegerEndpoint != ""
}

// WebhookConfig 事件推送配置
type WebhookConfig struct {
	URLs    []string `mapstructure:"urls"`
	Workers int      `mapstructure:"workers"`
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.certificate-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// DefaultRoleCapabilities 默认角色能力映射
func DefaultRoleCapabilities() map[string][]string {
	return map[string][]string{
		"admin": {
			"tool/certificate:manage",
			"tool/certificate:issue",
			"tool/certificate:viewallcertificates",
			"tool/certificate:verify",
			"tool/certificate:manageforalltenants",
		},
		"manager": {
			"tool/certificate:manage",
			"tool/certificate:issue",
			"tool/certificate:viewallcertificates",
			"tool/certificate:verify",
		},
		"issuer": {
			"tool/certificate:issue",
			"tool/certificate:verify",
		},
		"user": {
			"tool/certificate:verify",
		},
	}
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 50)

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "certificate.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "certificate")
	v.SetDefault("database.sslmode", "disable")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 300)
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 600)
	}

	// 文件存储默认配置
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./filedir")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "filedir")

	// OpenFGA 默认配置
	v.SetDefault("openfga.enabled", false)
	v.SetDefault("openfga.api_url", "http://localhost:8081")
	v.SetDefault("openfga.store_id", "")
	v.SetDefault("openfga.model_id", "")
	v.SetDefault("openfga.cache_ttl", 60)

	// Keycloak 默认配置
	v.SetDefault("keycloak.issuer", "")
	v.SetDefault("keycloak.jwks_url", "")
	v.SetDefault("keycloak.tenant_claim", "tenant_id")

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")

	// 证书默认配置（A4 横向）
	v.SetDefault("certificate.base_url", "http://localhost:8080")
	v.SetDefault("certificate.code_length", 10)
	v.SetDefault("certificate.page_width", 297)
	v.SetDefault("certificate.page_height", 210)
	v.SetDefault("certificate.selector_limit", 100)

	v.SetDefault("authorization.roles", DefaultRoleCapabilities())

	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("webhook.urls", []string{})
	v.SetDefault("webhook.workers", 2)
}
