package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

type ServerConfig struct {
	Addr        string        `mapstructure:"addr"`
	StaticDir   string        `mapstructure:"static_dir"`
	ChatTimeout time.Duration `mapstructure:"chat_timeout"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// RateLimit is the number of provider calls allowed per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type SchedulerConfig struct {
	Timezone   string          `mapstructure:"timezone"`
	Required   bool            `mapstructure:"required"`
	JobTimeout time.Duration   `mapstructure:"job_timeout"`
	Jobs       []JobDefinition `mapstructure:"jobs"`
}

// JobDefinition is a custom daily notification declared in the config file.
type JobDefinition struct {
	ID      string `mapstructure:"id"`
	At      string `mapstructure:"at"`
	Channel string `mapstructure:"channel"`
	Message string `mapstructure:"message"`
}

type NotifierConfig struct {
	ConsoleCharset string         `mapstructure:"console_charset"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	AMQP           AMQPConfig     `mapstructure:"amqp"`
}

type TelegramConfig struct {
	Token   string  `mapstructure:"token"`
	ChatIDs []int64 `mapstructure:"chat_ids"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
	MemoryLimit int    `mapstructure:"memory_limit"`
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
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
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

// LoadConfig reads defaults, the optional YAML file at path and the process
// environment, in increasing order of precedence. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.static_dir", "app/static")
	v.SetDefault("server.chat_timeout", 45*time.Second)
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout", 30*time.Second)
	v.SetDefault("openai.rate_limit", 0)
	v.SetDefault("openai.rate_burst", 1)
	v.SetDefault("scheduler.timezone", "Asia/Kolkata")
	v.SetDefault("scheduler.required", false)
	v.SetDefault("scheduler.job_timeout", 30*time.Second)
	v.SetDefault("notifier.console_charset", "utf-8")
	v.SetDefault("notifier.amqp.exchange", "moodmate.notifications")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", true)
	v.SetDefault("database.memory_limit", 100)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.MemoryLimit = config.Database.MemoryLimit
		config.Database = dbConfig
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if model := v.GetString("OPENAI_MODEL"); model != "" {
		config.OpenAI.Model = model
	}
	if baseURL := v.GetString("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}
	if tz := v.GetString("TIMEZONE"); tz != "" {
		config.Scheduler.Timezone = tz
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Notifier.Telegram.Token = token
	}
	if amqpURL := v.GetString("AMQP_URL"); amqpURL != "" {
		config.Notifier.AMQP.URL = amqpURL
	}
	if port := v.GetString("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}

	return &config, nil
}
