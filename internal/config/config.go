package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix          = "USERSTORE"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultLogLevel    = "info"
	defaultCookieName  = "app_session"
	defaultIssuer      = "userstore"

	// KeyDatabaseURL and KeyOwnerOpenID are bound to unprefixed variables shared with the host application.
	KeyDatabaseURL = "database.url"
	KeyOwnerOpenID = "owner.open_id"
)

// AppConfig captures runtime configuration for the user store.
type AppConfig struct {
	HTTPAddress          string
	DatabaseURL          string
	DatabaseLogQueries   bool
	OwnerOpenID          string
	LogLevel             string
	SessionSigningSecret string
	SessionCookieName    string
	SessionIssuer        string
}

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are ignored; variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	// BindEnv with explicit names cannot fail.
	_ = configViper.BindEnv(KeyDatabaseURL, "DATABASE_URL", envPrefix+"_DATABASE_URL")
	_ = configViper.BindEnv(KeyOwnerOpenID, "OWNER_OPEN_ID", envPrefix+"_OWNER_OPEN_ID")

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.log_queries", false)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultIssuer)
}

// Load parses runtime configuration from viper. A missing database URL is not an error.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabaseURL:          strings.TrimSpace(configViper.GetString(KeyDatabaseURL)),
		DatabaseLogQueries:   configViper.GetBool("database.log_queries"),
		OwnerOpenID:          strings.TrimSpace(configViper.GetString(KeyOwnerOpenID)),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionIssuer:        configViper.GetString("session.issuer"),
	}
	return cfg, nil
}

// DatabaseURLSource returns a lookup that re-reads the connection string on every call.
func DatabaseURLSource(configViper *viper.Viper) func() string {
	return func() string {
		return strings.TrimSpace(configViper.GetString(KeyDatabaseURL))
	}
}

// ValidateForServer checks the settings the HTTP server cannot run without.
func (c AppConfig) ValidateForServer() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	return nil
}
