// Package config 使用 viper 加载应用配置。
//
// 配置来源优先级：环境变量（前缀 MUSE） > 配置文件（config.yaml） > 默认值。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用总配置。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Credits   CreditsConfig   `mapstructure:"credits"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug / release / test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 返回监听地址。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig JWT 鉴权配置。
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	Issuer        string        `mapstructure:"issuer"`
	AllowInsecure bool          `mapstructure:"allow_insecure"` // 仅本地调试：允许 jwt_secret 留空（签名仍按空密钥校验）
}

// SimulatorConfig 生成任务模拟器的时间参数。
// 生产环境任务状态来自真实生成引擎的回调，模拟器仅在 mock 模式下驱动任务推进。
type SimulatorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	StartDelay   time.Duration `mapstructure:"start_delay"`   // pending -> processing
	StepInterval time.Duration `mapstructure:"step_interval"` // 各进度档位之间的间隔
	SuccessRate  float64       `mapstructure:"success_rate"`  // [0,1]
	MinDuration  int           `mapstructure:"min_duration"`  // 生成结果时长下限（秒）
	MaxDuration  int           `mapstructure:"max_duration"`  // 生成结果时长上限（秒）
	Workers      int           `mapstructure:"workers"`       // 状态推进协程池大小
}

// TasksConfig 生成任务的限制参数。
type TasksConfig struct {
	MaxActive int `mapstructure:"max_active"` // 单用户同时进行中的任务上限，<=0 不限制
}

// CreditsConfig 积分与订阅计划配置。
type CreditsConfig struct {
	FreeDaily      int64  `mapstructure:"free_daily"`
	ProMonthly     int64  `mapstructure:"pro_monthly"`
	PremiumMonthly int64  `mapstructure:"premium_monthly"`
	TaskCost       int64  `mapstructure:"task_cost"`  // 单次生成冻结的积分
	ResetCron      string `mapstructure:"reset_cron"` // 免费档每日重置
}

// StorageConfig S3 兼容对象存储配置。
type StorageConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	CDNDomain       string        `mapstructure:"cdn_domain"` // 非空时访问 URL 直接拼 CDN
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	UploadExpiry    time.Duration `mapstructure:"upload_expiry"` // 上传槽位有效期
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// BillingConfig 上游支付平台配置（checkout / portal 跳转）。
type BillingConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SuccessURL string        `mapstructure:"success_url"`
	CancelURL  string        `mapstructure:"cancel_url"`
}

// RedisConfig 会话存储使用的 Redis。
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console / json
	File       string `mapstructure:"file"`   // 为空则仅输出 stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.token_ttl", 72*time.Hour)
	v.SetDefault("auth.issuer", "muse2api")

	v.SetDefault("simulator.enabled", true)
	v.SetDefault("simulator.start_delay", 500*time.Millisecond)
	v.SetDefault("simulator.step_interval", time.Second)
	v.SetDefault("simulator.success_rate", 0.8)
	v.SetDefault("simulator.min_duration", 15)
	v.SetDefault("simulator.max_duration", 45)
	v.SetDefault("simulator.workers", 8)

	v.SetDefault("tasks.max_active", 5)

	v.SetDefault("credits.free_daily", 10)
	v.SetDefault("credits.pro_monthly", 500)
	v.SetDefault("credits.premium_monthly", 2000)
	v.SetDefault("credits.task_cost", 1)
	v.SetDefault("credits.reset_cron", "0 0 * * *")

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presign_expiry", 24*time.Hour)
	v.SetDefault("storage.upload_expiry", 15*time.Minute)
	v.SetDefault("storage.max_upload_bytes", 200<<20)

	v.SetDefault("billing.timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.session_ttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Load 加载配置。path 为空时在工作目录和 ./configs 下寻找 config.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("MUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可缺省，全部走默认值 + 环境变量
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" && !c.Auth.AllowInsecure {
		return fmt.Errorf("auth.jwt_secret 未配置（或显式开启 auth.allow_insecure）")
	}
	if c.Simulator.SuccessRate < 0 || c.Simulator.SuccessRate > 1 {
		return fmt.Errorf("simulator.success_rate 必须位于 [0,1]")
	}
	if c.Simulator.MinDuration <= 0 || c.Simulator.MaxDuration < c.Simulator.MinDuration {
		return fmt.Errorf("simulator 时长区间非法: [%d,%d]", c.Simulator.MinDuration, c.Simulator.MaxDuration)
	}
	if c.Credits.TaskCost <= 0 {
		return fmt.Errorf("credits.task_cost 必须为正")
	}
	return nil
}
