package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/directory"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SPONSOR_JWT_SECRET.
const EnvPrefix = "SPONSOR"

// Directory modes
const (
	DirectoryModeLDAP   = "ldap"
	DirectoryModeStatic = "static"
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	// Server bind address (host:port)
	ServerAddr string `mapstructure:"server_addr"`

	// Public base URL of the API
	ServerURL string `mapstructure:"server_url"`

	// Where the browser lands after a federated login
	FrontendURL string `mapstructure:"frontend_url"`

	// Origins allowed by CORS
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Database connection string (DSN); postgres:// or a SQLite path
	DatabaseURL string `mapstructure:"database_url"`

	// Maximum database connection pool size
	MaxDBConnections int `mapstructure:"max_db_connections"`

	// Enable debug logging
	Debug bool `mapstructure:"debug"`

	JWT           JWTConfig           `mapstructure:"jwt"`
	Cookie        CookieConfig        `mapstructure:"cookie"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
	OIDC          OIDCConfig          `mapstructure:"oidc"`
	Cache         CacheConfig         `mapstructure:"cache"`
	RoleCache     RoleCacheConfig     `mapstructure:"role_cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// JWTConfig configures session tokens.
type JWTConfig struct {
	// Secret is the HS512 signing key. Required.
	Secret string `mapstructure:"secret"`
	// TTL is the lifetime of tokens minted by password login.
	TTL time.Duration `mapstructure:"ttl"`
}

// CookieConfig configures the session cookie set after federated login.
type CookieConfig struct {
	// MaxAge in seconds
	MaxAge int `mapstructure:"max_age"`
}

// DirectoryConfig selects and configures the password-login source.
type DirectoryConfig struct {
	Mode        string                 `mapstructure:"mode"`
	LDAP        LDAPConfig             `mapstructure:"ldap"`
	StaticUsers []directory.StaticUser `mapstructure:"static_users"`
}

// LDAPConfig holds the LDAP connection settings.
type LDAPConfig struct {
	URL                string        `mapstructure:"url"`
	BindDN             string        `mapstructure:"bind_dn"`
	BindPassword       string        `mapstructure:"bind_password"`
	BaseDN             string        `mapstructure:"base_dn"`
	MailAttribute      string        `mapstructure:"mail_attribute"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// OIDCConfig configures federated login against a single provider.
type OIDCConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Issuer       string   `mapstructure:"issuer"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`

	AllowedDomains []string `mapstructure:"allowed_domains"`
	AllowedEmails  []string `mapstructure:"allowed_emails"`

	StateTTL     time.Duration `mapstructure:"state_ttl"`
	PrincipalTTL time.Duration `mapstructure:"principal_ttl"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`

	EmailClaim string `mapstructure:"email_claim"` // Default: "email"
	NameClaim  string `mapstructure:"name_claim"`  // Default: "name"
}

// CacheConfig configures the store for pending federated logins.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepFraction float64       `mapstructure:"sweep_fraction"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

// RoleCacheConfig bounds the in-process role lookup cache. TTL 0 disables it.
type RoleCacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// ObservabilityConfig configures tracing and metrics export.
type ObservabilityConfig struct {
	// OTLPEndpoint enables trace export when set (host:port).
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	// MetricsEnabled serves Prometheus metrics on /metrics.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// SetDefaults registers a default for every key. Viper only consults the
// environment for keys it knows about, so this also makes every nested key
// reachable through SPONSOR_* variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("database_url", "sponsormanager.db")
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("debug", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("cookie.max_age", 2592000)

	v.SetDefault("directory.mode", DirectoryModeLDAP)
	v.SetDefault("directory.ldap.url", "")
	v.SetDefault("directory.ldap.bind_dn", "")
	v.SetDefault("directory.ldap.bind_password", "")
	v.SetDefault("directory.ldap.base_dn", "")
	v.SetDefault("directory.ldap.mail_attribute", "mail")
	v.SetDefault("directory.ldap.connect_timeout", 5*time.Second)
	v.SetDefault("directory.ldap.request_timeout", 10*time.Second)
	v.SetDefault("directory.ldap.insecure_skip_verify", false)
	v.SetDefault("directory.static_users", []map[string]any{})

	v.SetDefault("oidc.enabled", false)
	v.SetDefault("oidc.issuer", "")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.client_secret", "")
	v.SetDefault("oidc.redirect_url", "")
	v.SetDefault("oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("oidc.allowed_domains", []string{})
	v.SetDefault("oidc.allowed_emails", []string{})
	v.SetDefault("oidc.state_ttl", 5*time.Minute)
	v.SetDefault("oidc.principal_ttl", 24*time.Hour)
	v.SetDefault("oidc.http_timeout", 10*time.Second)
	v.SetDefault("oidc.email_claim", "email")
	v.SetDefault("oidc.name_claim", "name")

	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.sweep_interval", 5*time.Second)
	v.SetDefault("cache.sweep_fraction", 0.25)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "sponsormanager:")

	v.SetDefault("role_cache.size", 1024)
	v.SetDefault("role_cache.ttl", 30*time.Second)

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_insecure", false)
	v.SetDefault("observability.service_name", "sponsormanager")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
}

// Load reads configuration from the global viper instance: defaults, then
// the config file if one was read, then SPONSOR_* environment variables.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command needs. Load runs it; the
// database and role commands need nothing more.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("SPONSOR_DATABASE_URL is required")
	}
	return nil
}

// ValidateServe reports the first missing or inconsistent setting the API
// server depends on.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWT.Secret == "" {
		return errors.New("SPONSOR_JWT_SECRET is required")
	}

	switch c.Directory.Mode {
	case DirectoryModeLDAP:
		if c.Directory.LDAP.URL == "" {
			return errors.New("SPONSOR_DIRECTORY_LDAP_URL is required for ldap directory mode")
		}
		if c.Directory.LDAP.BaseDN == "" {
			return errors.New("SPONSOR_DIRECTORY_LDAP_BASE_DN is required for ldap directory mode")
		}
	case DirectoryModeStatic:
	default:
		return fmt.Errorf("unknown directory mode %q (want %q or %q)", c.Directory.Mode, DirectoryModeLDAP, DirectoryModeStatic)
	}

	if c.OIDC.Enabled {
		required := []struct{ value, name string }{
			{c.OIDC.Issuer, "SPONSOR_OIDC_ISSUER"},
			{c.OIDC.ClientID, "SPONSOR_OIDC_CLIENT_ID"},
			{c.OIDC.ClientSecret, "SPONSOR_OIDC_CLIENT_SECRET"},
			{c.OIDC.RedirectURL, "SPONSOR_OIDC_REDIRECT_URL"},
		}
		for _, r := range required {
			if r.value == "" {
				return fmt.Errorf("%s is required when OIDC is enabled", r.name)
			}
		}
		if len(c.OIDC.AllowedDomains) == 0 && len(c.OIDC.AllowedEmails) == 0 {
			return errors.New("SPONSOR_OIDC_ALLOWED_DOMAINS or SPONSOR_OIDC_ALLOWED_EMAILS is required when OIDC is enabled")
		}
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("SPONSOR_CACHE_REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (want %q or %q)", c.Cache.Backend, CacheBackendMemory, CacheBackendRedis)
	}

	return nil
}
