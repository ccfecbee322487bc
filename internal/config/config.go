package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "GALLERIA"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "galleria.db"
	defaultLogLevel          = "info"
	defaultUnsplashBaseURL   = "https://api.unsplash.com"
	defaultUnsplashTimeout   = 10
	defaultUnsplashCacheTTL  = 300
	defaultSessionCookieName = "galleria_session"
	defaultSessionTTLHours   = 24 * 365
	defaultWritesPerMinute   = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	AllowedOrigins       []string
	DatabasePath         string
	LogLevel             string
	UnsplashBaseURL      string
	UnsplashAccessKey    string
	UnsplashTimeout      time.Duration
	UnsplashCacheTTL     time.Duration
	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
	SessionSecureCookie  bool
	WritesPerMinute      int
}

// LoadDotEnv reads variables from the given .env files into the process
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	for _, path := range paths {
		_ = godotenv.Load(path)
	}
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

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("unsplash.base_url", defaultUnsplashBaseURL)
	configViper.SetDefault("unsplash.timeout_seconds", defaultUnsplashTimeout)
	configViper.SetDefault("unsplash.cache_ttl_seconds", defaultUnsplashCacheTTL)
	configViper.SetDefault("session.cookie_name", defaultSessionCookieName)
	configViper.SetDefault("session.ttl_hours", defaultSessionTTLHours)
	configViper.SetDefault("session.secure_cookie", false)
	configViper.SetDefault("writes.per_minute", defaultWritesPerMinute)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AllowedOrigins:       parseOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		UnsplashBaseURL:      configViper.GetString("unsplash.base_url"),
		UnsplashAccessKey:    configViper.GetString("unsplash.access_key"),
		UnsplashTimeout:      time.Duration(configViper.GetInt("unsplash.timeout_seconds")) * time.Second,
		UnsplashCacheTTL:     time.Duration(configViper.GetInt("unsplash.cache_ttl_seconds")) * time.Second,
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTTL:           time.Duration(configViper.GetInt("session.ttl_hours")) * time.Hour,
		SessionSecureCookie:  configViper.GetBool("session.secure_cookie"),
		WritesPerMinute:      configViper.GetInt("writes.per_minute"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.UnsplashAccessKey) == "" {
		return fmt.Errorf("unsplash.access_key is required")
	}
	if strings.TrimSpace(c.UnsplashBaseURL) == "" {
		return fmt.Errorf("unsplash.base_url is required")
	}
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.UnsplashTimeout <= 0 {
		return fmt.Errorf("unsplash.timeout_seconds must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_hours must be positive")
	}
	if c.WritesPerMinute < 0 {
		return fmt.Errorf("writes.per_minute must not be negative")
	}
	return nil
}

// parseOrigins accepts both list values and a single comma separated env value.
func parseOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
