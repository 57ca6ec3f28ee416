package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Cookies       CookieConfig
	Admin         AdminConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds token verification and login flow configuration
type AuthConfig struct {
	Issuers                []IssuerConfig
	IssuersFile            string
	ClockSkew              time.Duration
	JWKSTimeout            time.Duration
	JWKSMinRefreshInterval time.Duration
	ExchangeTimeout        time.Duration
	DefaultRole            string
	FlowTTL                time.Duration
	DefaultSessionTTL      time.Duration
}

// LookupByName returns the issuer registered under name
func (c *AuthConfig) LookupByName(name string) (*IssuerConfig, bool) {
	for i := range c.Issuers {
		if c.Issuers[i].Name == name {
			return &c.Issuers[i], true
		}
	}
	return nil, false
}

// LoginProviders returns the names of the issuers that support the login flow
func (c *AuthConfig) LoginProviders() []string {
	names := make([]string, 0, len(c.Issuers))
	for i := range c.Issuers {
		if c.Issuers[i].SupportsLogin() {
			names = append(names, c.Issuers[i].Name)
		}
	}
	return names
}

// CookieConfig holds the cookie signing keys and attributes
type CookieConfig struct {
	Secret        string
	EncryptionKey string
	Secure        string // true, false or auto
	SameSite      string // lax, strict or none
	SessionName   string
	FlowName      string
	AdminName     string
}

// AdminConfig holds the local admin account configuration
type AdminConfig struct {
	Username     string
	PasswordHash string
	SessionTTL   time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			IssuersFile:            getEnv("AUTH_ISSUERS_FILE", ""),
			ClockSkew:              time.Duration(getEnvAsInt("AUTH_CLOCK_SKEW_SECONDS", 60)) * time.Second,
			JWKSTimeout:            getEnvAsDuration("AUTH_JWKS_TIMEOUT", 10*time.Second),
			JWKSMinRefreshInterval: getEnvAsDuration("AUTH_JWKS_MIN_REFRESH_INTERVAL", 30*time.Second),
			ExchangeTimeout:        getEnvAsDuration("AUTH_EXCHANGE_TIMEOUT", 15*time.Second),
			DefaultRole:            getEnv("AUTH_DEFAULT_ROLE", "member"),
			FlowTTL:                getEnvAsDuration("AUTH_FLOW_TTL", 10*time.Minute),
			DefaultSessionTTL:      getEnvAsDuration("SESSION_DEFAULT_TTL", time.Hour),
		},
		Cookies: CookieConfig{
			Secret:        getEnv("COOKIE_SECRET", ""),
			EncryptionKey: getEnv("COOKIE_ENCRYPTION_KEY", ""),
			Secure:        strings.ToLower(getEnv("COOKIE_SECURE", "auto")),
			SameSite:      strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
			SessionName:   getEnv("SESSION_COOKIE_NAME", "session"),
			FlowName:      getEnv("FLOW_COOKIE_NAME", "auth_flow"),
			AdminName:     getEnv("ADMIN_COOKIE_NAME", "admin_session"),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			SessionTTL:   getEnvAsDuration("ADMIN_SESSION_TTL", 8*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	issuers, err := loadIssuers(cfg.Auth.IssuersFile, getEnv("AUTH_ISSUERS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Auth.Issuers = issuers

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadIssuers(path, inline string) ([]IssuerConfig, error) {
	if path != "" {
		return LoadIssuersFile(path)
	}
	return ParseIssuers([]byte(inline))
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	switch c.Cookies.Secure {
	case "true", "false", "auto":
	default:
		return fmt.Errorf("COOKIE_SECURE must be true, false or auto")
	}
	switch c.Cookies.SameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("COOKIE_SAMESITE must be lax, strict or none")
	}
	// browsers drop SameSite=None cookies that are not Secure
	if c.Cookies.SameSite == "none" && !c.SecureCookies() {
		return fmt.Errorf("COOKIE_SAMESITE=none requires secure cookies")
	}
	if c.Cookies.Secret != "" && len(c.Cookies.Secret) < 32 {
		return fmt.Errorf("cookie secret must be at least 32 bytes")
	}
	switch len(c.Cookies.EncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("cookie encryption key must be 16, 24 or 32 bytes")
	}

	if c.Auth.FlowTTL <= 0 {
		return fmt.Errorf("auth flow TTL must be positive")
	}
	if c.Auth.ClockSkew < 0 {
		return fmt.Errorf("clock skew must not be negative")
	}

	if c.IsProduction() {
		if c.Cookies.Secret == "" {
			return fmt.Errorf("cookie secret is required in production")
		}
		if c.Cookies.Secure == "false" {
			return fmt.Errorf("insecure cookies are not allowed in production")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == "local"
}

// SecureCookies resolves COOKIE_SECURE. "auto" means secure everywhere
// except development.
func (c *Config) SecureCookies() bool {
	switch c.Cookies.Secure {
	case "true":
		return true
	case "false":
		return false
	default:
		return !c.IsDevelopment()
	}
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as required by the migration driver
func (c *DatabaseConfig) URL() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "dev"),
		Database:        getEnv("DB_NAME", "tenantchat"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
