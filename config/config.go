package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Brain     BrainConfig     `mapstructure:"brain"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Medium    MediumConfig    `mapstructure:"medium"`
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	Email     EmailConfig     `mapstructure:"email"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	OwnerName      string        `mapstructure:"owner_name"`
	HistoryWindow  int           `mapstructure:"history_window"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	Debug          bool          `mapstructure:"debug"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address           string `mapstructure:"address"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// LLMConfig contains the LLM provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	return nil
}

// BrainConfig points at the local markdown knowledge corpus
type BrainConfig struct {
	Root string `mapstructure:"root"`
	TopN int    `mapstructure:"top_n"`
}

// GitHubConfig contains GitHub REST API settings
type GitHubConfig struct {
	Token string `mapstructure:"token"`
	User  string `mapstructure:"user"`
}

// MediumConfig contains the Medium account whose feed is read
type MediumConfig struct {
	Username string `mapstructure:"username"`
}

// YouTubeConfig contains the YouTube channel whose feed is read
type YouTubeConfig struct {
	ChannelID string `mapstructure:"channel_id"`
}

// EmailConfig contains Brevo transactional email settings
type EmailConfig struct {
	APIKey           string `mapstructure:"api_key"`
	SenderEmail      string `mapstructure:"sender_email"`
	SenderName       string `mapstructure:"sender_name"`
	DefaultRecipient string `mapstructure:"default_recipient"`
}

// StorageConfig groups persistence backends
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns a postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")
	viper.SetDefault("general.owner_name", "Pamudu")
	viper.SetDefault("general.history_window", 12)
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 2048)
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("brain.root", "./brain")
	viper.SetDefault("brain.top_n", 3)
	viper.SetDefault("storage.postgres.sslmode", "disable")

	if path == "" {
		viper.AddConfigPath("./config") // path to look for the config file in
		viper.AddConfigPath(".")        // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("VIRTUALME")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (VIRTUALME_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}

	return &config
}
