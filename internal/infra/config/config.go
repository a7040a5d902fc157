package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Card       CardConfig       `mapstructure:"card"`
	Token      TokenConfig      `mapstructure:"token"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, postgres, sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration. An empty address keeps the
// conversation guard in process.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	UserAgent           string        `mapstructure:"user_agent"`
}

// LedgerConfig holds quota and subscription rules.
type LedgerConfig struct {
	Timezone         string        `mapstructure:"timezone"`
	FreeLimit        int           `mapstructure:"free_limit"`
	DailyHardLimit   int           `mapstructure:"daily_hard_limit"`
	SubscriptionDays int           `mapstructure:"subscription_days"`
	PendingTTL       time.Duration `mapstructure:"pending_ttl"`
	TurnTimeout      time.Duration `mapstructure:"turn_timeout"`
	GuardWait        time.Duration `mapstructure:"guard_wait"`
	GuardTTL         time.Duration `mapstructure:"guard_ttl"`
	UnresolvedAfter  time.Duration `mapstructure:"unresolved_after"`
}

// LLMConfig holds the OpenAI-compatible chat completions upstream.
type LLMConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
}

// CardConfig holds the card gateway configuration.
type CardConfig struct {
	Provider      string `mapstructure:"provider"` // yookassa, stripe, or empty to disable
	BaseURL       string `mapstructure:"base_url"`
	ShopID        string `mapstructure:"shop_id"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	ReturnURL     string `mapstructure:"return_url"`
	Price         string `mapstructure:"price"` // major units, e.g. "199.00"
	Currency      string `mapstructure:"currency"`
	Description   string `mapstructure:"description"`
}

// TokenConfig holds the in-platform token invoice configuration.
type TokenConfig struct {
	Price       int64  `mapstructure:"price"`
	Currency    string `mapstructure:"currency"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
}

// ArchiveConfig holds object storage for account snapshots taken before delete.
type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// AuthConfig holds admin API authentication.
type AuthConfig struct {
	JWTSecret string   `mapstructure:"jwt_secret"`
	AdminIDs  []string `mapstructure:"admin_ids"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from .env, the config file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/chatledger")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CHATLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecrets overrides sensitive values from the environment.
func applySecrets(cfg *Config) {
	if s := os.Getenv("CHATLEDGER_JWT_SECRET"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if s := os.Getenv("CHATLEDGER_DB_PASSWORD"); s != "" {
		cfg.Database.Password = s
	}
	if s := os.Getenv("CHATLEDGER_REDIS_PASSWORD"); s != "" {
		cfg.Redis.Password = s
	}
	if s := os.Getenv("CHATLEDGER_LLM_API_KEY"); s != "" {
		cfg.LLM.APIKey = s
	}
	if s := os.Getenv("CHATLEDGER_CARD_SECRET_KEY"); s != "" {
		cfg.Card.SecretKey = s
	}
	if s := os.Getenv("CHATLEDGER_CARD_WEBHOOK_SECRET"); s != "" {
		cfg.Card.WebhookSecret = s
	}
	if s := os.Getenv("CHATLEDGER_ARCHIVE_SECRET_KEY"); s != "" {
		cfg.Archive.SecretAccessKey = s
	}
	if s := os.Getenv("CHATLEDGER_ADMIN_IDS"); s != "" {
		cfg.Auth.AdminIDs = parseCommaSeparatedList(s)
	}
}

// minGuardTTL keeps the lease renewal interval above a few round trips.
const minGuardTTL = 3 * time.Second

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Card.Provider {
	case "", "yookassa", "stripe":
	default:
		return fmt.Errorf("unsupported card provider %q", c.Card.Provider)
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		return fmt.Errorf("ledger timezone: %w", err)
	}
	if c.Ledger.FreeLimit < 0 || c.Ledger.DailyHardLimit <= 0 || c.Ledger.SubscriptionDays <= 0 {
		return fmt.Errorf("ledger limits must be positive")
	}
	if c.Ledger.GuardTTL < minGuardTTL {
		return fmt.Errorf("ledger guard_ttl must be at least %s", minGuardTTL)
	}
	return nil
}

// AdminAccountIDs returns the configured admin account ids.
func (c *AuthConfig) AdminAccountIDs() []int64 {
	out := make([]int64, 0, len(c.AdminIDs))
	for _, s := range c.AdminIDs {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func parseCommaSeparatedList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "chatledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "chatledger.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "chatledger:")

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 30*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.user_agent", "chatledger/1.0")

	// Ledger defaults
	v.SetDefault("ledger.timezone", "Europe/Moscow")
	v.SetDefault("ledger.free_limit", 5)
	v.SetDefault("ledger.daily_hard_limit", 30)
	v.SetDefault("ledger.subscription_days", 30)
	v.SetDefault("ledger.pending_ttl", 10*time.Minute)
	v.SetDefault("ledger.turn_timeout", 60*time.Second)
	v.SetDefault("ledger.guard_wait", 90*time.Second)
	v.SetDefault("ledger.guard_ttl", 2*time.Minute)
	v.SetDefault("ledger.unresolved_after", time.Hour)

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.failure_threshold", 5)
	v.SetDefault("llm.circuit_timeout", 60*time.Second)

	// Card defaults
	v.SetDefault("card.provider", "")
	v.SetDefault("card.base_url", "https://api.yookassa.ru/v3")
	v.SetDefault("card.shop_id", "")
	v.SetDefault("card.return_url", "")
	v.SetDefault("card.price", "199.00")
	v.SetDefault("card.currency", "RUB")
	v.SetDefault("card.description", "Подписка на 30 дней")

	// Token defaults
	v.SetDefault("token.price", 100)
	v.SetDefault("token.currency", "XTR")
	v.SetDefault("token.title", "Подписка на 30 дней")
	v.SetDefault("token.description", "Безлимитные сообщения на 30 дней")

	// Archive defaults
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "auto")
	v.SetDefault("archive.prefix", "deleted-accounts/")

	// Auth defaults
	v.SetDefault("auth.admin_ids", []string{})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
