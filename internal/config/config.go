// Package config loads and validates the process configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "threadlens"
	DefaultPGSSLMode        = "disable"
	DefaultExtractorBaseURL = "https://api.openai.com/v1"
	DefaultExtractorModel   = "gpt-4o-mini"
	DefaultMaxImages        = 50
	DefaultMessageLimit     = 4000
	DefaultWorkers          = 1
	DefaultJobPollInterval  = "2s"
	DefaultJobMaxAttempts   = 3
)

// ErrMissingCredential marks a required credential that is absent from the
// configuration. Surfaced before any processing begins.
var ErrMissingCredential = errors.New("missing required credential")

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Feishu    FeishuConfig    `toml:"feishu"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Extractor ExtractorConfig `toml:"extractor"`
	Processor ProcessorConfig `toml:"processor"`
	Jobs      JobsConfig      `toml:"jobs"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// FeishuConfig holds the bot app credentials. VerificationToken authenticates
// webhook callbacks; EncryptKey enables SDK payload decryption and signature
// verification when set.
type FeishuConfig struct {
	AppID             string `toml:"app_id" validate:"required"`
	AppSecret         string `toml:"app_secret" validate:"required"`
	VerificationToken string `toml:"verification_token"`
	EncryptKey        string `toml:"encrypt_key"`
	BaseURL           string `toml:"base_url"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the postgres connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type ExtractorConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key" validate:"required"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c ExtractorConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProcessorConfig bounds a single thread run. MessageLimit is the assumed
// platform ceiling for one message body; the platform may enforce a stricter
// one at publish time. Workers > 1 enables the bounded fan-out strategy.
type ProcessorConfig struct {
	MaxImages    int `toml:"max_images"`
	MessageLimit int `toml:"message_limit"`
	Workers      int `toml:"workers"`
}

type JobsConfig struct {
	PollInterval string `toml:"poll_interval"`
	MaxAttempts  int    `toml:"max_attempts"`
}

func (c JobsConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.PollInterval))
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Extractor: ExtractorConfig{
			BaseURL: DefaultExtractorBaseURL,
			Model:   DefaultExtractorModel,
		},
		Processor: ProcessorConfig{
			MaxImages:    DefaultMaxImages,
			MessageLimit: DefaultMessageLimit,
			Workers:      DefaultWorkers,
		},
		Jobs: JobsConfig{
			PollInterval: DefaultJobPollInterval,
			MaxAttempts:  DefaultJobMaxAttempts,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks that the required external credentials are present. Values
// are never logged; only presence is checked.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Feishu.AppID) == "" {
		missing = append(missing, "feishu.app_id")
	}
	if strings.TrimSpace(c.Feishu.AppSecret) == "" {
		missing = append(missing, "feishu.app_secret")
	}
	if strings.TrimSpace(c.Feishu.VerificationToken) == "" && strings.TrimSpace(c.Feishu.EncryptKey) == "" {
		missing = append(missing, "feishu.verification_token")
	}
	if strings.TrimSpace(c.Extractor.APIKey) == "" {
		missing = append(missing, "extractor.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	return nil
}

// Presence reports which required credentials are configured, for the health
// endpoint. Keys only, never values.
func (c Config) Presence() map[string]bool {
	return map[string]bool{
		"feishu_app_id":             strings.TrimSpace(c.Feishu.AppID) != "",
		"feishu_app_secret":         strings.TrimSpace(c.Feishu.AppSecret) != "",
		"feishu_verification_token": strings.TrimSpace(c.Feishu.VerificationToken) != "" || strings.TrimSpace(c.Feishu.EncryptKey) != "",
		"extractor_api_key":         strings.TrimSpace(c.Extractor.APIKey) != "",
		"postgres_password":         strings.TrimSpace(c.Postgres.Password) != "",
	}
}
