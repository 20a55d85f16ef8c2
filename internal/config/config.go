// Package config loads and validates the aduser configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "64K"

	DefaultDirectoryURL     = "https://graph.microsoft.com/v1.0"
	DefaultDirectoryScope   = "https://graph.microsoft.com/.default"
	DefaultDirectoryTimeout = 60 * time.Second
	DefaultTokenBuffer      = 30 * time.Second

	DefaultRateLimit       = 60
	DefaultRateLimitWindow = time.Minute

	DefaultMongoDBTimeout     = 10 * time.Second
	DefaultMongoDBMaxPoolSize = 20

	DefaultRedisPoolSize = 10

	DefaultBatchConcurrency = 4

	DefaultJWTLeeway          = 30 * time.Second
	DefaultJWTRefreshInterval = 1 * time.Hour
)

// Backing store names.
const (
	StoreMemory  = "memory"
	StoreRedis   = "redis"
	StoreNone    = "none"
	StoreMongoDB = "mongodb"
)

// Config holds the complete application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Directory DirectoryConfig `yaml:"directory"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	Audit     AuditConfig     `yaml:"audit"`
	Batch     BatchConfig     `yaml:"batch"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Name is the application name used in logs and metrics.
	Name string `yaml:"name" env:"APP_NAME"`
}

// DirectoryConfig holds the directory service connection.
//
//nolint:golines // Struct tags require longer lines for readability
type DirectoryConfig struct {
	URL          string        `yaml:"url" env:"DIRECTORY_URL"`
	TokenURL     string        `yaml:"token_url" env:"DIRECTORY_TOKEN_URL"`
	ClientID     string        `yaml:"client_id" env:"DIRECTORY_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"DIRECTORY_CLIENT_SECRET"`
	Scope        string        `yaml:"scope" env:"DIRECTORY_SCOPE"`
	Timeout      time.Duration `yaml:"timeout" env:"DIRECTORY_TIMEOUT"`
	TokenBuffer  time.Duration `yaml:"token_buffer" env:"DIRECTORY_TOKEN_BUFFER"`
	TokenCache   string        `yaml:"token_cache" env:"DIRECTORY_TOKEN_CACHE"` // memory | redis
}

// ServerConfig holds HTTP server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ServerConfig struct {
	Host            string          `yaml:"host" env:"SERVER_HOST"`
	Port            int             `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	BodyLimit       string          `yaml:"body_limit" env:"SERVER_BODY_LIMIT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// Address returns the full server address (host:port).
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig holds per-caller API rate limiting.
//
//nolint:golines // Struct tags require longer lines for readability
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"RATE_LIMIT_LIMIT"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	Store   string        `yaml:"store" env:"RATE_LIMIT_STORE"` // memory | redis
}

// RedisConfig holds Redis connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	PoolSize  int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// MongoDBConfig holds MongoDB connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type MongoDBConfig struct {
	URI         string        `yaml:"uri" env:"MONGODB_URI"`
	Database    string        `yaml:"database" env:"MONGODB_DATABASE"`
	Timeout     time.Duration `yaml:"timeout" env:"MONGODB_TIMEOUT"`
	MaxPoolSize uint64        `yaml:"max_pool_size" env:"MONGODB_MAX_POOL_SIZE"`
}

// AuditConfig selects where update audit entries go.
//
//nolint:golines // Struct tags require longer lines for readability
type AuditConfig struct {
	Store     string        `yaml:"store" env:"AUDIT_STORE"` // none | mongodb
	Retention time.Duration `yaml:"retention" env:"AUDIT_RETENTION"`
}

// BatchConfig holds batch update configuration.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" env:"BATCH_CONCURRENCY"`
}

// LogConfig holds logging configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

// AuthConfig holds inbound bearer token validation for the HTTP API.
//
//nolint:golines // Struct tags require longer lines for readability
type AuthConfig struct {
	Enabled         bool          `yaml:"enabled" env:"AUTH_ENABLED"`
	JWKSURL         string        `yaml:"jwks_url" env:"AUTH_JWKS_URL"`
	Issuer          string        `yaml:"issuer" env:"AUTH_ISSUER"`
	Audience        string        `yaml:"audience" env:"AUTH_AUDIENCE"`
	TenantID        string        `yaml:"tenant_id" env:"AUTH_TENANT_ID"`
	RequiredRole    string        `yaml:"required_role" env:"AUTH_REQUIRED_ROLE"`
	Leeway          time.Duration `yaml:"leeway" env:"AUTH_LEEWAY"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"AUTH_REFRESH_INTERVAL"`
}

// Configuration errors.
var (
	ErrConfigNotFound     = errors.New("configuration file not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrMissingRequired    = errors.New("missing required configuration")
	ErrInvalidDuration    = errors.New("invalid duration format")
	ErrInvalidLogLevel    = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat   = errors.New("invalid log format: must be json or text")
	ErrInvalidTokenCache  = errors.New("invalid token cache: must be memory or redis")
	ErrInvalidAuditStore  = errors.New("invalid audit store: must be none or mongodb")
	ErrInvalidRateLimiter = errors.New("invalid rate limit store: must be memory or redis")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "aduser",
		},
		Directory: DirectoryConfig{
			URL:         DefaultDirectoryURL,
			Scope:       DefaultDirectoryScope,
			Timeout:     DefaultDirectoryTimeout,
			TokenBuffer: DefaultTokenBuffer,
			TokenCache:  StoreMemory,
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			BodyLimit:       DefaultBodyLimit,
			RateLimit: RateLimitConfig{
				Limit:  DefaultRateLimit,
				Window: DefaultRateLimitWindow,
				Store:  StoreMemory,
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  DefaultRedisPoolSize,
			KeyPrefix: "aduser:",
		},
		MongoDB: MongoDBConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "aduser",
			Timeout:     DefaultMongoDBTimeout,
			MaxPoolSize: DefaultMongoDBMaxPoolSize,
		},
		Audit: AuditConfig{
			Store: StoreNone,
		},
		Batch: BatchConfig{
			Concurrency: DefaultBatchConcurrency,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Leeway:          DefaultJWTLeeway,
			RefreshInterval: DefaultJWTRefreshInterval,
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateDirectory(errs)
	errs = c.validateServer(errs)
	errs = c.validateRedis(errs)
	errs = c.validateMongoDB(errs)
	errs = c.validateBatch(errs)
	errs = c.validateLog(errs)
	errs = c.validateAuth(errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}

func (c *Config) validateDirectory(errs []error) []error {
	if c.Directory.URL == "" {
		errs = append(errs, fmt.Errorf("%w: directory.url", ErrMissingRequired))
	}
	if c.Directory.TokenURL == "" {
		errs = append(errs, fmt.Errorf("%w: directory.token_url", ErrMissingRequired))
	}
	if c.Directory.ClientID == "" {
		errs = append(errs, fmt.Errorf("%w: directory.client_id", ErrMissingRequired))
	}
	if c.Directory.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("%w: directory.client_secret", ErrMissingRequired))
	}
	if c.Directory.Timeout <= 0 {
		errs = append(errs, errors.New("directory.timeout must be positive"))
	}
	if c.Directory.TokenBuffer < 0 {
		errs = append(errs, errors.New("directory.token_buffer must not be negative"))
	}
	switch strings.ToLower(c.Directory.TokenCache) {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidTokenCache, c.Directory.TokenCache))
	}
	return errs
}

func (c *Config) validateServer(errs []error) []error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}

	rl := c.Server.RateLimit
	if !rl.Enabled {
		return errs
	}
	if rl.Limit <= 0 {
		errs = append(errs, errors.New("server.rate_limit.limit must be positive"))
	}
	if rl.Window <= 0 {
		errs = append(errs, errors.New("server.rate_limit.window must be positive"))
	}
	switch strings.ToLower(rl.Store) {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidRateLimiter, rl.Store))
	}
	return errs
}

func (c *Config) validateRedis(errs []error) []error {
	if c.UsesRedis() && c.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: redis.addr", ErrMissingRequired))
	}
	return errs
}

func (c *Config) validateMongoDB(errs []error) []error {
	switch strings.ToLower(c.Audit.Store) {
	case StoreNone, "":
		return errs
	case StoreMongoDB:
	default:
		return append(errs, fmt.Errorf("%w: got %q", ErrInvalidAuditStore, c.Audit.Store))
	}

	if c.MongoDB.URI == "" {
		errs = append(errs, fmt.Errorf("%w: mongodb.uri", ErrMissingRequired))
	}
	if c.MongoDB.Database == "" {
		errs = append(errs, fmt.Errorf("%w: mongodb.database", ErrMissingRequired))
	}
	if c.Audit.Retention < 0 {
		errs = append(errs, errors.New("audit.retention must not be negative"))
	}
	return errs
}

func (c *Config) validateBatch(errs []error) []error {
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, errors.New("batch.concurrency must be positive"))
	}
	return errs
}

func (c *Config) validateLog(errs []error) []error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ErrInvalidLogFormat)
	}
	return errs
}

func (c *Config) validateAuth(errs []error) []error {
	if !c.Auth.Enabled {
		return errs
	}
	if c.Auth.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("%w: auth.jwks_url", ErrMissingRequired))
	}
	if c.Auth.Issuer == "" {
		errs = append(errs, fmt.Errorf("%w: auth.issuer", ErrMissingRequired))
	}
	return errs
}

// UsesRedis reports whether any component is configured to use Redis.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.Directory.TokenCache, StoreRedis) ||
		(c.Server.RateLimit.Enabled && strings.EqualFold(c.Server.RateLimit.Store, StoreRedis))
}

// UsesMongoDB reports whether audit entries go to MongoDB.
func (c *Config) UsesMongoDB() bool {
	return strings.EqualFold(c.Audit.Store, StoreMongoDB)
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}

// Loader handles configuration loading from files and environment variables.
type Loader struct {
	configPaths []string
	envFiles    []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/aduser/config.yaml",
		},
		envFiles: []string{".env"},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// WithEnvFiles sets the dotenv files read before environment overrides.
// Variables already present in the environment win over dotenv values.
func (l *Loader) WithEnvFiles(paths ...string) *Loader {
	l.envFiles = paths
	return l
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	// Determine config file path
	configPath := path
	if configPath == "" {
		// Check CONFIG_PATH environment variable first
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			// Search in standard locations
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	// Load from file if found
	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only return error if path was explicitly specified
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, continue with defaults + env vars
		}
	}

	// Override with environment variables
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadEnvFiles() error {
	for _, p := range l.envFiles {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Handle embedded structs
		if field.Kind() == reflect.Struct {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		// Get env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		// Get environment variable value
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		// Set field value based on type
		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable string.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Check if it's a time.Duration
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

