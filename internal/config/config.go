package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Orders      OrdersConfig      `mapstructure:"orders"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Mail        MailConfig        `mapstructure:"mail"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type OrdersConfig struct {
	MaxPending int           `mapstructure:"max_pending"`
	TxTimeout  time.Duration `mapstructure:"tx_timeout"`
}

type NotifyConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Channel    string        `mapstructure:"channel"`
	Queue      string        `mapstructure:"queue"` // memory|redis
	QueueSize  int           `mapstructure:"queue_size"`
	Workers    int           `mapstructure:"workers"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type MailConfig struct {
	Provider string      `mapstructure:"provider"` // smtp|plunk|log
	ReplyTo  string      `mapstructure:"reply_to"`
	SMTP     SMTPConfig  `mapstructure:"smtp"`
	Plunk    PlunkConfig `mapstructure:"plunk"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type PlunkConfig struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
	APIURL string `mapstructure:"api_url"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// envBindings keeps the variable names the deployment already uses.
var envBindings = map[string]string{
	"server.port":        "PORT",
	"database.user":      "DB_USER",
	"database.password":  "DB_PASSWORD",
	"database.host":      "DB_HOST",
	"database.port":      "DB_PORT",
	"database.name":      "DB_NAME",
	"database.sslmode":   "DB_SSLMODE",
	"redis.addr":         "REDIS_ADDR",
	"redis.password":     "REDIS_PASSWORD",
	"auth.jwt_secret":    "JWT_SECRET",
	"notify.queue":       "NOTIFY_QUEUE",
	"mail.provider":      "MAIL_PROVIDER",
	"mail.reply_to":      "MAIL_REPLY_TO",
	"mail.smtp.host":     "SMTP_HOST",
	"mail.smtp.port":     "SMTP_PORT",
	"mail.smtp.username": "SMTP_USERNAME",
	"mail.smtp.password": "SMTP_PASSWORD",
	"mail.smtp.from":     "SMTP_FROM",
	"mail.plunk.api_key": "PLUNK_API_KEY",
	"mail.plunk.from":    "PLUNK_FROM",
	"mail.plunk.api_url": "PLUNK_API_URL",
	"log.level":          "LOG_LEVEL",
	"log.encoding":       "LOG_ENCODING",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("orders.max_pending", 3)
	v.SetDefault("orders.tx_timeout", 5*time.Second)
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.channel", "email_channel")
	v.SetDefault("notify.queue", "memory")
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.retry_delay", 5*time.Second)
	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.plunk.api_url", "https://api.useplunk.com/v1/send")
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
}

// Load reads .env, the optional YAML file at path, and the environment, in
// increasing order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Orders.MaxPending < 1 {
		return fmt.Errorf("config: orders.max_pending must be >= 1, got %d", c.Orders.MaxPending)
	}
	switch c.Mail.Provider {
	case "smtp", "plunk", "log":
	default:
		return fmt.Errorf("config: unknown mail provider %q", c.Mail.Provider)
	}
	switch c.Notify.Queue {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: notify.queue=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown notify queue %q", c.Notify.Queue)
	}
	return nil
}

// DSN builds the Postgres connection URL.
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
