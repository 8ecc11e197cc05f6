package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "KEEPNOTE"
	defaultHTTPAddress        = "0.0.0.0:5000"
	defaultDatabaseDriver     = DriverSQLite
	defaultDatabasePath       = "keepnote.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultKeycloakURL        = "http://localhost:6060"
	defaultKeycloakRealm      = "fastApi"
	defaultKeycloakClientID   = "dashboard"
	defaultDevTokenIssuer     = "keepnote-dev"
	defaultReminderLookahead  = 5 * time.Minute
	defaultEmailInterval      = 10 * time.Second
	defaultEmailWindow        = 10 * time.Minute
	defaultEmailFromAddress   = "Keep Note <reminders@keepnote.local>"
	defaultPostmarkURL        = "https://api.postmarkapp.com/email"
	defaultClientBaseURL      = "http://localhost:5000"
	defaultPollInterval       = 30 * time.Second
	defaultTokenMinValidity   = 30 * time.Second
	defaultClientHTTPTimeout  = 15 * time.Second
	defaultDatabaseMaxConns   = 25
	defaultDatabaseIdleConns  = 5
	defaultDatabaseConnMaxAge = 5 * time.Minute
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// KeycloakConfig identifies the realm and client that issue bearer tokens.
type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

// RealmURL returns the base URL of the configured realm.
func (c KeycloakConfig) RealmURL() string {
	return strings.TrimRight(c.URL, "/") + "/realms/" + c.Realm
}

// JWKSURL returns the certificate endpoint of the realm.
func (c KeycloakConfig) JWKSURL() string {
	return c.RealmURL() + "/protocol/openid-connect/certs"
}

// TokenURL returns the token endpoint of the realm.
func (c KeycloakConfig) TokenURL() string {
	return c.RealmURL() + "/protocol/openid-connect/token"
}

// LogoutURL returns the end-session endpoint of the realm.
func (c KeycloakConfig) LogoutURL() string {
	return c.RealmURL() + "/protocol/openid-connect/logout"
}

// DatabaseConfig selects and tunes the persistence backend.
type DatabaseConfig struct {
	Driver          string
	Path            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// EmailConfig configures the reminder email job.
type EmailConfig struct {
	PostmarkToken string
	PostmarkURL   string
	FromAddress   string
	Interval      time.Duration
	Window        time.Duration
}

// Enabled reports whether reminder emails can be delivered.
func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.PostmarkToken) != ""
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	Database          DatabaseConfig
	Keycloak          KeycloakConfig
	DevSigningSecret  string
	DevTokenIssuer    string
	ReminderLookahead time.Duration
	Email             EmailConfig
	LogLevel          string
	LogFormat         string
}

// ClientConfig captures runtime configuration for the command line client.
type ClientConfig struct {
	BaseURL          string
	Keycloak         KeycloakConfig
	AccessToken      string
	RefreshToken     string
	TokenMinValidity time.Duration
	PollInterval     time.Duration
	HTTPTimeout      time.Duration
	LogLevel         string
	LogFormat        string
}

// LoadDotEnv reads a .env file into the process environment when present.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
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
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.max_open_conns", defaultDatabaseMaxConns)
	configViper.SetDefault("database.max_idle_conns", defaultDatabaseIdleConns)
	configViper.SetDefault("database.conn_max_lifetime", defaultDatabaseConnMaxAge)
	configViper.SetDefault("keycloak.url", defaultKeycloakURL)
	configViper.SetDefault("keycloak.realm", defaultKeycloakRealm)
	configViper.SetDefault("keycloak.client_id", defaultKeycloakClientID)
	configViper.SetDefault("auth.dev_issuer", defaultDevTokenIssuer)
	configViper.SetDefault("reminders.lookahead", defaultReminderLookahead)
	configViper.SetDefault("email.postmark_url", defaultPostmarkURL)
	configViper.SetDefault("email.from", defaultEmailFromAddress)
	configViper.SetDefault("email.interval", defaultEmailInterval)
	configViper.SetDefault("email.window", defaultEmailWindow)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("client.base_url", defaultClientBaseURL)
	configViper.SetDefault("client.poll_interval", defaultPollInterval)
	configViper.SetDefault("client.token_min_validity", defaultTokenMinValidity)
	configViper.SetDefault("client.http_timeout", defaultClientHTTPTimeout)
}

func loadKeycloak(configViper *viper.Viper) KeycloakConfig {
	return KeycloakConfig{
		URL:      strings.TrimSpace(configViper.GetString("keycloak.url")),
		Realm:    strings.TrimSpace(configViper.GetString("keycloak.realm")),
		ClientID: strings.TrimSpace(configViper.GetString("keycloak.client_id")),
	}
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		Database: DatabaseConfig{
			Driver:          strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
			Path:            configViper.GetString("database.path"),
			DSN:             configViper.GetString("database.dsn"),
			MaxOpenConns:    configViper.GetInt("database.max_open_conns"),
			MaxIdleConns:    configViper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: configViper.GetDuration("database.conn_max_lifetime"),
		},
		Keycloak:          loadKeycloak(configViper),
		DevSigningSecret:  configViper.GetString("auth.dev_signing_secret"),
		DevTokenIssuer:    configViper.GetString("auth.dev_issuer"),
		ReminderLookahead: configViper.GetDuration("reminders.lookahead"),
		Email: EmailConfig{
			PostmarkToken: configViper.GetString("email.postmark_token"),
			PostmarkURL:   configViper.GetString("email.postmark_url"),
			FromAddress:   configViper.GetString("email.from"),
			Interval:      configViper.GetDuration("email.interval"),
			Window:        configViper.GetDuration("email.window"),
		},
		LogLevel:  configViper.GetString("log.level"),
		LogFormat: configViper.GetString("log.format"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Keycloak.URL == "" || c.Keycloak.Realm == "" || c.Keycloak.ClientID == "" {
		return fmt.Errorf("keycloak.url, keycloak.realm and keycloak.client_id are required")
	}
	if c.ReminderLookahead < 0 {
		return fmt.Errorf("reminders.lookahead must not be negative")
	}
	if c.Email.Enabled() {
		if c.Email.Interval <= 0 {
			return fmt.Errorf("email.interval must be positive")
		}
		if c.Email.Window <= 0 {
			return fmt.Errorf("email.window must be positive")
		}
	}
	return nil
}

// LoadClient parses command line client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		BaseURL:          strings.TrimRight(strings.TrimSpace(configViper.GetString("client.base_url")), "/"),
		Keycloak:         loadKeycloak(configViper),
		AccessToken:      strings.TrimSpace(configViper.GetString("client.access_token")),
		RefreshToken:     strings.TrimSpace(configViper.GetString("client.refresh_token")),
		TokenMinValidity: configViper.GetDuration("client.token_min_validity"),
		PollInterval:     configViper.GetDuration("client.poll_interval"),
		HTTPTimeout:      configViper.GetDuration("client.http_timeout"),
		LogLevel:         configViper.GetString("log.level"),
		LogFormat:        configViper.GetString("log.format"),
	}
	if cfg.BaseURL == "" {
		return ClientConfig{}, fmt.Errorf("client.base_url is required")
	}
	if cfg.AccessToken == "" && cfg.RefreshToken == "" {
		return ClientConfig{}, fmt.Errorf("client.access_token or client.refresh_token is required")
	}
	if cfg.PollInterval <= 0 {
		return ClientConfig{}, fmt.Errorf("client.poll_interval must be positive")
	}
	return cfg, nil
}
