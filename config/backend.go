package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-simpler.org/env"
)

const (
	DEFAULT_REGION             = "us-west-2"
	DEFAULT_LOCAL_ENDPOINT     = "http://localhost:8000"
	DEFAULT_JOURNAL_TABLE_NAME = "JournalEntries"
	DEFAULT_SIGNIN_RETRIES     = 3
	DEFAULT_SIGNIN_RETRY_DELAY = 5 * time.Second
)

var ErrMissingField = errors.New("missing required config field")

// Backend identifies the hosted project. The values are opaque and are only
// forwarded to the identity service and used to namespace cached sessions.
type Backend struct {
	APIKey            string `env:"BACKEND_API_KEY"`
	ProjectID         string `env:"BACKEND_PROJECT_ID"`
	AuthDomain        string `env:"BACKEND_AUTH_DOMAIN"`
	StorageBucket     string `env:"BACKEND_STORAGE_BUCKET"`
	MessagingSenderID string `env:"BACKEND_MESSAGING_SENDER_ID"`
	AppID             string `env:"BACKEND_APP_ID"`
}

type Store struct {
	Region    string `env:"AWS_REGION" default:"us-west-2"`
	Endpoint  string `env:"AWS_ENDPOINT"`
	TableName string `env:"JOURNAL_TABLE_NAME" default:"JournalEntries"`
}

type Valkey struct {
	Address  string `env:"VALKEY_INIT_ADDRESS"`
	Password string `env:"VALKEY_PASSWORD"`
	TLS      bool   `env:"VALKEY_TLS" default:"false"`
}

// Enabled reports whether a Valkey address was configured.
func (v Valkey) Enabled() bool {
	return v.Address != ""
}

type Config struct {
	Env              string        `env:"APP_ENV" default:"dev"`
	Backend          Backend
	Store            Store
	Valkey           Valkey
	SignInRetries    int           `env:"SIGNIN_RETRIES" default:"3"`
	SignInRetryDelay time.Duration `env:"SIGNIN_RETRY_DELAY" default:"5s"`
}

// Load reads the configuration from the process environment. Call LoadEnv
// first to pull in the env file for the current APP_ENV. Malformed values
// are errors, not defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("[Config] failed to load environment variables: %w", err)
	}

	if cfg.Store.Endpoint == "" && cfg.Env == "dev" {
		cfg.Store.Endpoint = DEFAULT_LOCAL_ENDPOINT
	}
	if cfg.SignInRetries < 0 {
		return Config{}, fmt.Errorf("[Config] SIGNIN_RETRIES must not be negative, got %d", cfg.SignInRetries)
	}
	if cfg.SignInRetryDelay < 0 {
		return Config{}, fmt.Errorf("[Config] SIGNIN_RETRY_DELAY must not be negative, got %s", cfg.SignInRetryDelay)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var missing []string
	if c.Backend.APIKey == "" {
		missing = append(missing, "BACKEND_API_KEY")
	}
	if c.Backend.ProjectID == "" {
		missing = append(missing, "BACKEND_PROJECT_ID")
	}
	if c.Backend.AppID == "" {
		missing = append(missing, "BACKEND_APP_ID")
	}
	if c.Store.TableName == "" {
		missing = append(missing, "JOURNAL_TABLE_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("[Config] %w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}
