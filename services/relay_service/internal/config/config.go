package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config relay_service 配置，对应 configs/config.<APP_ENV>.yaml
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Events EventsConfig `mapstructure:"events"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	NATS   NATSConfig   `mapstructure:"nats"`
	WS     WSConfig     `mapstructure:"ws"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	Mode       string `mapstructure:"mode"` // hmac|jwks
	Secret     string `mapstructure:"secret"`
	JWKSURL    string `mapstructure:"jwks_url"`
	Issuer     string `mapstructure:"issuer"`
}

type StoreConfig struct {
	Driver    string        `mapstructure:"driver"` // redis|memory
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type EventsConfig struct {
	Driver string `mapstructure:"driver"` // none|kafka|nats
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type WSConfig struct {
	SendBuffer     int   `mapstructure:"send_buffer"`
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// setDefaults 每个键都要有默认值，AutomaticEnv 才能在 Unmarshal 时生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 3001)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.cookie_name", "__session")
	v.SetDefault("auth.mode", "hmac")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.key_prefix", "user:status:")
	v.SetDefault("store.ttl", 0)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("events.driver", "none")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "relay.presence.change")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "relay.presence")

	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.max_message_size", 64*1024)
}

// Load 读取 config.<env>.yaml；找不到文件时只用默认值和环境变量。
// 环境变量以 RELAY_ 开头，例如 RELAY_AUTH_SECRET。
func Load(env string, paths ...string) (*Config, string, error) {
	v := viper.New()
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "../configs", "../../configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("读取配置文件失败：%w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("解析配置失败：%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// Validate 检查各驱动需要的配置项
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("配置错误：server.http_port 非法：%d", c.Server.HTTPPort)
	}

	switch c.Auth.Mode {
	case "hmac":
		if c.Auth.Secret == "" {
			return fmt.Errorf("配置错误：auth.mode 为 hmac 时 auth.secret 不能为空")
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("配置错误：auth.mode 为 jwks 时 auth.jwks_url 不能为空")
		}
	default:
		return fmt.Errorf("配置错误：auth.mode 只能是 hmac/jwks")
	}

	switch c.Store.Driver {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("配置错误：redis.addr 不能为空")
		}
	case "memory":
	default:
		return fmt.Errorf("配置错误：store.driver 只能是 redis/memory")
	}

	switch c.Events.Driver {
	case "", "none", "nats":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("配置错误：events.driver 为 kafka 时 kafka.brokers 不能为空")
		}
	default:
		return fmt.Errorf("配置错误：events.driver 只能是 none/kafka/nats")
	}

	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}
	if c.WS.MaxMessageSize <= 0 {
		c.WS.MaxMessageSize = 64 * 1024
	}
	return nil
}
