package zlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper" // 配置管理工具库
)

// FileConfig 本地轮转文件策略，tag 被 viper 用来匹配字段
type FileConfig struct {
	Path       string `mapstructure:"path"`        // 日志文件路径，为空则不落盘
	MaxSizeMB  int    `mapstructure:"max_size"`    // 单个日志文件最大容量（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 保留旧文件数量
	MaxAgeDay  int    `mapstructure:"max_age"`     // 最长保存天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧日志文件
}

// Config 日志配置
type Config struct {
	Service      string     `mapstructure:"service"`       // 归属服务名
	Level        string     `mapstructure:"level"`         // debug|info|warn|error
	Encoding     string     `mapstructure:"encoding"`      // json|console
	Stdout       bool       `mapstructure:"stdout"`        // 是否同时输出到控制台
	File         FileConfig `mapstructure:"file"`          // 文件相关配置
	EnableMetric bool       `mapstructure:"enable_metric"` // 是否上报 Prometheus 指标
}

// DefaultConfig 没有配置文件时使用的默认值（控制台输出，info 级别）
func DefaultConfig(service string) Config {
	return Config{
		Service:      service,
		Level:        "info",
		Encoding:     "json",
		Stdout:       true,
		EnableMetric: true,
	}
}

// LoadConfig 从服务配置文件的 log 段读取日志配置。
// 找不到某个配置项时会去查 ZLOG_ 开头的环境变量，例如 ZLOG_LOG_LEVEL。
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetEnvPrefix("ZLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.service", "unknown")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 60)
	v.SetDefault("log.file.max_age", 1)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("log.enable_metric", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取日志配置文件失败：%w", err)
	}

	// 整体反序列化，默认值和环境变量才会合并进 log 段
	var wrapper struct {
		Log Config `mapstructure:"log"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return nil, fmt.Errorf("加载日志配置失败：%w", err)
	}

	cfg := wrapper.Log
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 严格校验，并把文件相关的非法值修正为默认值
func (cfg *Config) Validate() error {
	if cfg.Service == "" {
		return fmt.Errorf("配置错误：service 不能为空")
	}

	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("配置错误：level 只能是 debug/info/warn/error")
	}

	switch cfg.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("配置错误：encoding 只能是 json/console")
	}

	if !cfg.Stdout && cfg.File.Path == "" {
		return fmt.Errorf("配置错误：stdout 为 false 时，file.path 不能为空")
	}

	if cfg.File.Path != "" {
		if cfg.File.MaxSizeMB <= 0 {
			cfg.File.MaxSizeMB = 100
		}
		if cfg.File.MaxBackups < 0 {
			cfg.File.MaxBackups = 60
		}
		if cfg.File.MaxAgeDay < 0 {
			cfg.File.MaxAgeDay = 30
		}
	}
	return nil
}

// LogFilenameWithDate 按天拼接日志文件名
func LogFilenameWithDate(base string) string {
	return base + "." + time.Now().Format("2006-01-02")
}
