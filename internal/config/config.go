package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Engagement EngagementConfig `mapstructure:"engagement"`
	Persona    PersonaConfig    `mapstructure:"persona"`
	Callback   CallbackConfig   `mapstructure:"callback"`
	Reports    ReportsConfig    `mapstructure:"reports"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the shared API key expected in the x-api-key header
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	StreamName string `mapstructure:"stream_name"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// DetectionConfig configures the first-message scam classifier
type DetectionConfig struct {
	ScamThreshold float64 `mapstructure:"scam_threshold"`
}

// EngagementConfig configures session tracking and the termination policy
type EngagementConfig struct {
	MaxTurns       int `mapstructure:"max_turns"`
	MinTurnsForEnd int `mapstructure:"min_turns_for_end"`
	LockShards     int `mapstructure:"lock_shards"`
	HistoryWindow  int `mapstructure:"history_window"`
}

// PersonaConfig configures the decoy reply generator
type PersonaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Provider       string        `mapstructure:"provider"` // gemini, claude, openai
	GoogleAPIKey   string        `mapstructure:"google_api_key"`
	ClaudeAPIKey   string        `mapstructure:"claude_api_key"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxReplyLength int           `mapstructure:"max_reply_length"`
}

// CallbackConfig configures final report submission
type CallbackConfig struct {
	URL         string        `mapstructure:"url"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
}

type ReportsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/honeypot-lab")
	}

	// Environment variables
	v.SetEnvPrefix("HONEYPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets are usually env-only, bind them explicitly
	v.BindEnv("auth.api_key", "HONEYPOT_AUTH_API_KEY")
	v.BindEnv("persona.google_api_key", "HONEYPOT_PERSONA_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	v.BindEnv("persona.claude_api_key", "HONEYPOT_PERSONA_CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("persona.openai_api_key", "HONEYPOT_PERSONA_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("callback.url", "HONEYPOT_CALLBACK_URL")
	v.BindEnv("redis.host", "HONEYPOT_REDIS_HOST")
	v.BindEnv("redis.password", "HONEYPOT_REDIS_PASSWORD")
	v.BindEnv("database.host", "HONEYPOT_DATABASE_HOST")
	v.BindEnv("database.password", "HONEYPOT_DATABASE_PASSWORD")
	v.BindEnv("app.environment", "HONEYPOT_APP_ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate checks values the engagement pipeline depends on
func (c *Config) Validate() error {
	if c.Detection.ScamThreshold < 0 || c.Detection.ScamThreshold > 1 {
		return fmt.Errorf("detection.scam_threshold must be within [0,1], got %v", c.Detection.ScamThreshold)
	}
	if c.Engagement.MaxTurns <= 0 {
		return fmt.Errorf("engagement.max_turns must be positive, got %d", c.Engagement.MaxTurns)
	}
	if c.Engagement.MinTurnsForEnd < 0 {
		return fmt.Errorf("engagement.min_turns_for_end must not be negative, got %d", c.Engagement.MinTurnsForEnd)
	}
	if c.Engagement.LockShards <= 0 {
		return fmt.Errorf("engagement.lock_shards must be positive, got %d", c.Engagement.LockShards)
	}
	if c.Callback.MaxAttempts <= 0 {
		return fmt.Errorf("callback.max_attempts must be positive, got %d", c.Callback.MaxAttempts)
	}
	switch c.Persona.Provider {
	case "gemini", "claude", "openai":
	default:
		return fmt.Errorf("persona.provider %q is not supported", c.Persona.Provider)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "honeypot-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8000)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("auth.api_key", "default_secret_key_change_me")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "honeypot")
	v.SetDefault("database.dbname", "honeypot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "honeypot:")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "HONEYPOT_EVENTS")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 120)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)

	v.SetDefault("detection.scam_threshold", 0.7)

	v.SetDefault("engagement.max_turns", 20)
	v.SetDefault("engagement.min_turns_for_end", 5)
	v.SetDefault("engagement.lock_shards", 32)
	v.SetDefault("engagement.history_window", 10)

	v.SetDefault("persona.enabled", true)
	v.SetDefault("persona.provider", "gemini")
	v.SetDefault("persona.temperature", 0.9)
	v.SetDefault("persona.max_tokens", 150)
	v.SetDefault("persona.timeout", 20*time.Second)
	v.SetDefault("persona.max_reply_length", 200)

	v.SetDefault("callback.url", "https://hackathon.guvi.in/api/updateHoneyPotFinalResult")
	v.SetDefault("callback.max_attempts", 3)
	v.SetDefault("callback.base_delay", time.Second)
	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("callback.workers", 4)
	v.SetDefault("callback.queue_size", 256)

	v.SetDefault("reports.cache_ttl", 24*time.Hour)
}
