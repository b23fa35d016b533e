package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	devFrontendOrigin = "http://localhost:5173"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	Env     string        `yaml:"env"`
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are honored.
	// Empty means the peer address is the client address.
	TrustedProxies []string        `yaml:"trustedProxies"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware. A ValkeyAddr switches the
// limiter from in-process buckets to a shared fixed window.
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
	Burst             int    `yaml:"burst"`
	ValkeyAddr        string `yaml:"valkeyAddr"`
}

// AuthConfig holds token secrets and the browser redirect targets of the OAuth flow.
type AuthConfig struct {
	AccessSecret       string       `yaml:"accessSecret"`
	RefreshSecret      string       `yaml:"refreshSecret"`
	SuccessRedirectURL string       `yaml:"successRedirectUrl"`
	FailureRedirectURL string       `yaml:"failureRedirectUrl"`
	Google             GoogleConfig `yaml:"google"`
}

// GoogleConfig is the OAuth client registration. Empty means the Google flow is off.
type GoogleConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	CallbackURL  string `yaml:"callbackUrl"`
}

// Enabled reports whether any Google setting is present.
func (g GoogleConfig) Enabled() bool {
	return strings.TrimSpace(g.ClientID) != "" || strings.TrimSpace(g.ClientSecret) != "" || strings.TrimSpace(g.CallbackURL) != ""
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// MongoConfig contains the connection URI and database name.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// IsProduction reports whether cookies and error bodies use the production posture.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// CORSOrigins returns the configured origins; outside production the local frontend
// dev server is always allowed.
func (c *Config) CORSOrigins() []string {
	origins := make([]string, 0, len(c.HTTP.AllowedOrigins)+1)
	seen := make(map[string]struct{})
	for _, origin := range c.HTTP.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	if !c.IsProduction() {
		if _, ok := seen[devFrontendOrigin]; !ok {
			origins = append(origins, devFrontendOrigin)
		}
	}
	return origins
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_TRUSTED_PROXIES"); v != "" {
		cfg.HTTP.TrustedProxies = splitList(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_VALKEY_ADDR"); v != "" {
		cfg.HTTP.RateLimit.ValkeyAddr = v
	}
	if v := os.Getenv("JWT_ACCESS_SECRET"); v != "" {
		cfg.Auth.AccessSecret = v
	}
	if v := os.Getenv("JWT_REFRESH_SECRET"); v != "" {
		cfg.Auth.RefreshSecret = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_CALLBACK_URL"); v != "" {
		cfg.Auth.Google.CallbackURL = v
	}
	if v := os.Getenv("AUTH_SUCCESS_REDIRECT_URL"); v != "" {
		cfg.Auth.SuccessRedirectURL = v
	}
	if v := os.Getenv("AUTH_FAILURE_REDIRECT_URL"); v != "" {
		cfg.Auth.FailureRedirectURL = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Store.Mongo.URI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		cfg.Store.Mongo.Database = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func defaultConfig() *Config {
	return &Config{
		Env: EnvDevelopment,
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
		},
		Auth: AuthConfig{
			SuccessRedirectURL: "http://localhost:5173/",
			FailureRedirectURL: "/auth/login-failure",
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
			Mongo: MongoConfig{
				Database: "todoauth",
			},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.Env != EnvProduction && c.Env != EnvDevelopment {
		return fmt.Errorf("env must be %q or %q", EnvProduction, EnvDevelopment)
	}
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	for _, proxy := range c.HTTP.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("http.trustedProxies entry %q is not an IP or CIDR", proxy)
			}
		}
	}
	if strings.TrimSpace(c.Auth.AccessSecret) == "" {
		return errors.New("auth.accessSecret cannot be empty")
	}
	if strings.TrimSpace(c.Auth.RefreshSecret) == "" {
		return errors.New("auth.refreshSecret cannot be empty")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("auth.accessSecret and auth.refreshSecret must differ")
	}
	if strings.TrimSpace(c.Auth.SuccessRedirectURL) == "" || strings.TrimSpace(c.Auth.FailureRedirectURL) == "" {
		return errors.New("auth redirect urls cannot be empty")
	}
	if g := c.Auth.Google; g.Enabled() {
		if strings.TrimSpace(g.ClientID) == "" || strings.TrimSpace(g.ClientSecret) == "" || strings.TrimSpace(g.CallbackURL) == "" {
			return errors.New("auth.google requires clientId, clientSecret and callbackUrl together")
		}
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Store.Postgres.DSN) == "" {
			return errors.New("store.postgres.dsn cannot be empty when driver is postgres")
		}
		if c.Store.Postgres.MaxConns < 0 || c.Store.Postgres.MinConns < 0 {
			return errors.New("store.postgres connection limits cannot be negative")
		}
	case DriverMongo:
		if strings.TrimSpace(c.Store.Mongo.URI) == "" {
			return errors.New("store.mongo.uri cannot be empty when driver is mongo")
		}
		if strings.TrimSpace(c.Store.Mongo.Database) == "" {
			return errors.New("store.mongo.database cannot be empty when driver is mongo")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	return nil
}
