package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Session    SessionConfig    `mapstructure:"session"`
	Line       LineConfig       `mapstructure:"line"`
	LineLogin  LineLoginConfig  `mapstructure:"line_login"`
	Google     GoogleConfig     `mapstructure:"google"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type ServerConfig struct {
	Port         int  `mapstructure:"port"`
	CookieSecure bool `mapstructure:"cookie_secure"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LineConfig is the default Messaging API channel, used by the webhook
// route that carries no channel id
type LineConfig struct {
	ChannelID     string `mapstructure:"channel_id"`
	ChannelSecret string `mapstructure:"channel_secret"`
	AccessToken   string `mapstructure:"access_token"`
	EndpointBase  string `mapstructure:"endpoint_base"`
}

type LineLoginConfig struct {
	ChannelID     string `mapstructure:"channel_id"`
	ChannelSecret string `mapstructure:"channel_secret"`
	RedirectURL   string `mapstructure:"redirect_url"`
}

type GoogleConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"`
}

type ClassifierConfig struct {
	DangerWords []string `mapstructure:"danger_words"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path and applies environment overrides. A missing file
// leaves the defaults in place so the service can run from env alone.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cookie_secure", true)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("session.ttl", "720h")
	v.SetDefault("line.endpoint_base", "https://api.line.me")
	v.SetDefault("google.api_base_url", "https://mybusiness.googleapis.com")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 200)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("redis.dedupe_ttl", "24h")

	// Enable environment variable support
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if port := v.GetInt("PORT"); port != 0 {
		config.Server.Port = port
	}
	overrides := map[string]*string{
		"LINE_CHANNEL_ID":           &config.Line.ChannelID,
		"LINE_CHANNEL_SECRET":       &config.Line.ChannelSecret,
		"LINE_CHANNEL_ACCESS_TOKEN": &config.Line.AccessToken,
		"LINE_LOGIN_CHANNEL_ID":     &config.LineLogin.ChannelID,
		"LINE_LOGIN_CHANNEL_SECRET": &config.LineLogin.ChannelSecret,
		"LINE_LOGIN_REDIRECT_URL":   &config.LineLogin.RedirectURL,
		"OPENAI_API_KEY":            &config.OpenAI.APIKey,
		"TELEGRAM_TOKEN":            &config.Telegram.Token,
		"REDIS_URL":                 &config.Redis.URL,
	}
	for env, dst := range overrides {
		if value := v.GetString(env); value != "" {
			*dst = value
		}
	}

	return &config, nil
}
