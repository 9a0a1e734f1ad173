package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable Load consults, so
// database_url is read from PETADMIN_DATABASE_URL and
// oidc.external_idp.issuer from PETADMIN_OIDC_EXTERNAL_IDP_ISSUER.
const EnvPrefix = "PETADMIN"

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). postgres:// selects PostgreSQL,
	// anything else is treated as a SQLite DSN.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Maximum database connection pool size (PostgreSQL only)
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	LogLevel  string
	LogFormat string

	// RulesPath points at a YAML provisioning rule table. Empty selects the
	// embedded default table.
	RulesPath string

	Auth          AuthConfig
	OIDC          OIDCConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// AuthConfig controls how the admin API identifies the calling principal.
type AuthConfig struct {
	// TrustedHeader carries the email or user id of the authenticated
	// caller, set by the fronting proxy.
	TrustedHeader string
}

// OIDCConfig holds federated login configuration. Login is optional: with
// ExternalIdP nil the SSO endpoints are not mounted.
type OIDCConfig struct {
	ExternalIdP *ExternalIdPConfig
}

// ExternalIdPConfig holds configuration for the external identity provider
// (Keycloak, Entra ID, Okta) whose ID tokens feed identity provisioning.
type ExternalIdPConfig struct {
	Issuer       string   // e.g. "https://login.microsoftonline.com/tenant-id/v2.0"
	ClientID     string   // petadmin's client ID registered with the IdP
	ClientSecret string   // petadmin's client secret with the IdP
	RedirectURI  string   // e.g. "https://admin.example.com/auth/sso/callback"
	Scopes       []string // default ["openid", "profile", "email"]
	ProviderName string   // stored on users.provider, defaults to "oidc"
}

// CORSConfig lists origins allowed to call the admin API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig configures OpenTelemetry tracing.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Defaults shared with the CLI flag definitions.
const (
	DefaultDatabaseURL      = "sqlite://file:petadmin.db?cache=shared"
	DefaultServerAddr       = "localhost:8080"
	DefaultMaxDBConnections = 25
	DefaultTrustedHeader    = "X-Remote-User"
	DefaultProviderName     = "oidc"
	DefaultServiceName      = "petadmin"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", DefaultDatabaseURL)
	v.SetDefault("server_addr", DefaultServerAddr)
	v.SetDefault("max_db_connections", DefaultMaxDBConnections)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("rules_path", "")
	v.SetDefault("auth.trusted_header", DefaultTrustedHeader)
	v.SetDefault("oidc.external_idp.issuer", "")
	v.SetDefault("oidc.external_idp.client_id", "")
	v.SetDefault("oidc.external_idp.client_secret", "")
	v.SetDefault("oidc.external_idp.redirect_uri", "")
	v.SetDefault("oidc.external_idp.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("oidc.external_idp.provider_name", DefaultProviderName)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.service_name", DefaultServiceName)
	v.SetDefault("otel.service_version", "dev")
	v.SetDefault("otel.environment", "development")
}

// Load builds a Config from the global viper instance: an optional config
// file already read by the caller, PETADMIN_* environment variables and
// defaults, in decreasing precedence.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds a Config from v. Values are read key by key because
// AutomaticEnv does not populate nested keys through Unmarshal.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		ServerAddr:       v.GetString("server_addr"),
		MaxDBConnections: v.GetInt("max_db_connections"),
		Debug:            v.GetBool("debug"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		RulesPath:        v.GetString("rules_path"),
		Auth: AuthConfig{
			TrustedHeader: v.GetString("auth.trusted_header"),
		},
		CORS: CORSConfig{
			AllowedOrigins: v.GetStringSlice("cors.allowed_origins"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   v.GetString("otel.endpoint"),
			OTLPInsecure:   v.GetBool("otel.insecure"),
			ServiceName:    v.GetString("otel.service_name"),
			ServiceVersion: v.GetString("otel.service_version"),
			Environment:    v.GetString("otel.environment"),
		},
	}

	if issuer := v.GetString("oidc.external_idp.issuer"); issuer != "" {
		cfg.OIDC.ExternalIdP = &ExternalIdPConfig{
			Issuer:       issuer,
			ClientID:     v.GetString("oidc.external_idp.client_id"),
			ClientSecret: v.GetString("oidc.external_idp.client_secret"),
			RedirectURI:  v.GetString("oidc.external_idp.redirect_uri"),
			Scopes:       v.GetStringSlice("oidc.external_idp.scopes"),
			ProviderName: v.GetString("oidc.external_idp.provider_name"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("server_addr is required")
	}
	if c.MaxDBConnections < 1 {
		return fmt.Errorf("max_db_connections must be positive, got %d", c.MaxDBConnections)
	}
	if c.Auth.TrustedHeader == "" {
		return fmt.Errorf("auth.trusted_header is required")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if idp := c.OIDC.ExternalIdP; idp != nil {
		if idp.ClientID == "" {
			return fmt.Errorf("%s_OIDC_EXTERNAL_IDP_CLIENT_ID is required for SSO login", EnvPrefix)
		}
		if idp.ClientSecret == "" {
			return fmt.Errorf("%s_OIDC_EXTERNAL_IDP_CLIENT_SECRET is required for SSO login", EnvPrefix)
		}
		if idp.RedirectURI == "" {
			return fmt.Errorf("%s_OIDC_EXTERNAL_IDP_REDIRECT_URI is required for SSO login", EnvPrefix)
		}
		if idp.ProviderName == "" {
			idp.ProviderName = DefaultProviderName
		}
	}
	return nil
}
