// Package config loads casedesk settings: defaults, then an optional YAML
// file, then CASEDESK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "CASEDESK_"

// Backend names accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Backend  string         `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	REST     RESTConfig     `yaml:"rest"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Blob     BlobConfig     `yaml:"blob"`
	Remote   RemoteConfig   `yaml:"remote"`
	Rate     RateConfig     `yaml:"rate"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RESTConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// RedisConfig selects the Redis session store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AuthConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

// BlobConfig selects MinIO when Endpoint is set, memory otherwise.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

type RemoteConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type RateConfig struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			MaxUploadBytes:  20 << 20,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Backend: BackendMemory,
		REST:    RESTConfig{Timeout: 10 * time.Second},
		Redis:   RedisConfig{Prefix: "casedesk:session:"},
		Auth:    AuthConfig{Issuer: "casedesk", SessionTTL: 12 * time.Hour},
		Blob:    BlobConfig{Bucket: "casedesk-documents", Region: "us-east-1"},
		Remote:  RemoteConfig{Timeout: 10 * time.Second},
		Rate:    RateConfig{PerSecond: 20, Burst: 40},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path returns the config file named by CASEDESK_CONFIG, if any.
func Path() string { return os.Getenv(envPrefix + "CONFIG") }

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	dur("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	if v, ok := lookup(envPrefix + "HTTP_ALLOWED_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("BACKEND", &c.Backend)
	str("PG_DSN", &c.Database.DSN)
	str("REST_URL", &c.REST.URL)
	str("REST_API_KEY", &c.REST.APIKey)
	dur("REST_TIMEOUT", &c.REST.Timeout)
	integer("REST_RETRIES", &c.REST.Retries)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	str("AUTH_SECRET", &c.Auth.Secret)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	dur("AUTH_SESSION_TTL", &c.Auth.SessionTTL)
	str("BLOB_ENDPOINT", &c.Blob.Endpoint)
	str("BLOB_ACCESS_KEY", &c.Blob.AccessKey)
	str("BLOB_SECRET_KEY", &c.Blob.SecretKey)
	str("BLOB_BUCKET", &c.Blob.Bucket)
	dur("REMOTE_TIMEOUT", &c.Remote.Timeout)
	if v, ok := lookup(envPrefix + "BLOB_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBLOB_USE_SSL: %w", envPrefix, err))
		} else {
			c.Blob.UseSSL = b
		}
	}
	if v, ok := lookup(envPrefix + "RATE_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_PER_SECOND: %w", envPrefix, err))
		} else {
			c.Rate.PerSecond = f
		}
	}
	integer("RATE_BURST", &c.Rate.Burst)
	return errors.Join(errs...)
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres backend"))
		}
	case BackendREST:
		if c.REST.URL == "" {
			errs = append(errs, errors.New("rest.url is required for the rest backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
