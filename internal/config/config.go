package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultConfigPath = "config.json"
	defaultModel      = "gpt-4.1-nano"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig      `json:"basic_config"`
	Completion  CompletionConfig `json:"completion"`
	Database    DatabaseConfig   `json:"database"`
	Redis       RedisConfig      `json:"redis"`
	NATS        NATSConfig       `json:"nats"`
	Auth        AuthConfig       `json:"auth"`
	Queue       QueueConfig      `json:"queue"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address"`
	LogMode        string   `json:"log_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// CompletionConfig describes the remote chat-completion endpoint.
type CompletionConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether a redis server was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type NATSConfig struct {
	URL     string `json:"url"`
	Stream  string `json:"stream"`
	Subject string `json:"subject"`
}

type AuthConfig struct {
	JWTSecret       string `json:"jwt_secret"`
	Issuer          string `json:"issuer"`
	TokenTTLMinutes int    `json:"token_ttl_minutes"`
}

type QueueConfig struct {
	Backend           string `json:"backend"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleSeconds int    `json:"worker_idle_seconds"`
	RedisKey          string `json:"redis_key"`
}

// Load reads configuration from the provided path (defaults to config.json),
// then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Defaults()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// running purely from the environment
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if isSQLite(cfg.Database.Driver) && cfg.Database.DSN != ":memory:" && !filepath.IsAbs(cfg.Database.DSN) &&
		!strings.HasPrefix(cfg.Database.DSN, "file:") {
		cfg.Database.DSN = filepath.Join(filepath.Dir(absPath), cfg.Database.DSN)
	}
	return cfg, nil
}

// Defaults returns a configuration with every optional field populated.
func Defaults() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: ":8090",
			LogMode:       "development",
		},
		Completion: CompletionConfig{
			Provider: "openai",
			Model:    defaultModel,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "data/jindalchat.db",
			Params: "parseTime=true&charset=utf8mb4",
		},
		Redis: RedisConfig{Port: 6379},
		NATS: NATSConfig{
			Stream:  "CHAT_RESPONSES",
			Subject: "chat.responses",
		},
		Auth: AuthConfig{
			Issuer:          "jindalchat",
			TokenTTLMinutes: 24 * 60,
		},
		Queue: QueueConfig{
			Backend:           "memory",
			MinWorkers:        2,
			MaxWorkers:        16,
			QueueSize:         256,
			WorkerIdleSeconds: 30,
			RedisKey:          "jindalchat:jobs",
		},
	}
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must be configured")
	}
	if strings.TrimSpace(c.Completion.APIKey) == "" {
		return errors.New("completion.api_key must be configured")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be configured for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return errors.New("database.host and database.db_name must be configured for mysql")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return errors.New("queue backend redis requires redis.host")
		}
	case "nats":
		if c.NATS.URL == "" {
			return errors.New("queue backend nats requires nats.url")
		}
	default:
		return fmt.Errorf("unsupported queue backend: %s", c.Queue.Backend)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Completion.BaseURL, "CHAT_OPENAI_BASE_URL")
	setString(&cfg.Completion.APIKey, "CHAT_OPENAI_API_KEY")
	setString(&cfg.Completion.Provider, "JINDALCHAT_PROVIDER")
	setString(&cfg.Completion.Model, "JINDALCHAT_MODEL")
	setString(&cfg.BasicConfig.ServerAddress, "JINDALCHAT_ADDR")
	setString(&cfg.BasicConfig.LogMode, "LOG_MODE")
	setString(&cfg.Database.Driver, "JINDALCHAT_DB")
	setString(&cfg.Database.DSN, "JINDALCHAT_DB_DSN")
	setString(&cfg.Auth.JWTSecret, "JINDALCHAT_JWT_SECRET")
	setString(&cfg.Queue.Backend, "JINDALCHAT_QUEUE")
	setString(&cfg.NATS.URL, "JINDALCHAT_NATS_URL")

	if addr := strings.TrimSpace(os.Getenv("JINDALCHAT_REDIS_ADDR")); addr != "" {
		host, port, found := strings.Cut(addr, ":")
		cfg.Redis.Host = host
		if found {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Redis.Port = p
			}
		}
	}
	if origins := strings.TrimSpace(os.Getenv("JINDALCHAT_ALLOWED_ORIGINS")); origins != "" {
		cfg.BasicConfig.AllowedOrigins = strings.Split(origins, ",")
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
