// internal/pkg/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Catalog source kinds
const (
	SourceFile     = "file"
	SourceS3       = "s3"
	SourcePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Application
	App AppConfig

	// Catalog
	Catalog CatalogConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Asynq
	Asynq AsynqConfig

	// AWS
	AWS AWSConfig

	// Security
	Security SecurityConfig

	// Server
	Server ServerConfig

	// Browse sessions
	Browse BrowseConfig

	v *viper.Viper
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `required:"true"`
	Environment string // development, staging, production
	Version     string
	LogLevel    string
	LogFormat   string // json, text
	Debug       bool
	ConfigFile  string
}

// CatalogConfig selects and tunes the product catalog source
type CatalogConfig struct {
	Source        string `required:"true"` // file, s3, postgres
	FilePath      string
	Watch         bool
	WatchDebounce time.Duration
	S3Key         string
	WarmOnReload  bool
	WarmPages     int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	MigrateOnStart  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            string
	Password        string
	DB              int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxConnAge      time.Duration
	PoolTimeout     time.Duration
	IdleTimeout     time.Duration
	TTL             time.Duration
}

// AsynqConfig holds Asynq configuration
type AsynqConfig struct {
	Enabled              bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	Concurrency          int
	Queues               map[string]int // queue name -> priority
	StrictPriority       bool
	RetryMax             int
	ShutdownTimeout      time.Duration
	HealthCheckInterval  time.Duration
	DelayedTaskCheckTime time.Duration
	WarmSchedule         string // cron spec, empty disables
	MetricsAddr          string // worker /metrics listener, empty disables
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string // For MinIO in development
	UsePathStyle    bool   // For MinIO compatibility
	SecretsProvider string // env, aws
	SecretName      string
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimitRequests int
	RateLimitDuration time.Duration
	AllowedOrigins    []string
	TrustedProxies    []string
	SecureHeaders     bool
	RequestIDHeader   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host              string
	Port              string `required:"true"`
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GracefulTimeout   time.Duration
	EnablePprof       bool
	EnableMetrics     bool
	EnableHealthCheck bool
	EnableCompression bool
	TLSEnabled        bool
	TLSCertFile       string
	TLSKeyFile        string
}

// BrowseConfig tunes headless browse sessions
type BrowseConfig struct {
	APIBaseURL         string
	RequestTimeout     time.Duration
	NearMargin         int
	FarMargin          int
	Threshold          float64
	PollInterval       time.Duration
	StaleTime          time.Duration
	MaxRetainedQueries int
	SearchDebounce     time.Duration
	ViewportHeight     int
	RowHeight          int
	Columns            int
}

// Load loads configuration from environment variables and an optional config file
func Load(logger *slog.Logger) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Load .env file in development
	if env == "development" || env == "local" {
		if err := godotenv.Load(); err != nil {
			logger.Warn("no .env file found, using environment variables",
				slog.String("error", err.Error()))
		} else {
			logger.Info(".env file loaded successfully")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		logger.Info("config file loaded", slog.String("file", file))
	}

	r := reader{v: v}

	cfg := &Config{
		App: AppConfig{
			Name:        r.getEnv("APP_NAME", "catalog-api"),
			Environment: env,
			Version:     r.getEnv("APP_VERSION", "dev"),
			LogLevel:    r.getEnv("LOG_LEVEL", "debug"),
			LogFormat:   r.getEnv("LOG_FORMAT", "json"),
			Debug:       r.getBoolEnv("APP_DEBUG", env == "development"),
			ConfigFile:  os.Getenv("CONFIG_FILE"),
		},
		Catalog: CatalogConfig{
			Source:        r.getEnv("CATALOG_SOURCE", SourceFile),
			FilePath:      r.getEnv("CATALOG_FILE", "data/products.json"),
			Watch:         r.getBoolEnv("CATALOG_WATCH", env == "development"),
			WatchDebounce: r.getDurationEnv("CATALOG_WATCH_DEBOUNCE", 250*time.Millisecond),
			S3Key:         r.getEnv("CATALOG_S3_KEY", "catalog/products.json"),
			WarmOnReload:  r.getBoolEnv("CATALOG_WARM_ON_RELOAD", true),
			WarmPages:     r.getIntEnv("CATALOG_WARM_PAGES", 3),
		},
		Database: DatabaseConfig{
			Host:            r.getEnv("DB_HOST", "localhost"),
			Port:            r.getEnv("DB_PORT", "5432"),
			User:            r.getEnv("DB_USER", "catalog"),
			Password:        r.getEnv("DB_PASSWORD", "catalog_dev"),
			Name:            r.getEnv("DB_NAME", "catalog"),
			SSLMode:         r.getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  r.getIntEnv("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    r.getIntEnv("DB_MAX_IDLE_CONNECTIONS", 2),
			ConnMaxLifetime: r.getDurationEnv("DB_CONNECTION_LIFETIME", time.Hour),
			ConnMaxIdleTime: r.getDurationEnv("DB_IDLE_TIME", 30*time.Minute),
			ConnectTimeout:  r.getDurationEnv("DB_CONNECT_TIMEOUT", 10*time.Second),
			MigrateOnStart:  r.getBoolEnv("DB_MIGRATE_ON_START", env != "production"),
		},
		Redis: RedisConfig{
			Enabled:         r.getBoolEnv("REDIS_ENABLED", true),
			Host:            r.getEnv("REDIS_HOST", "localhost"),
			Port:            r.getEnv("REDIS_PORT", "6379"),
			Password:        r.getEnv("REDIS_PASSWORD", ""),
			DB:              r.getIntEnv("REDIS_DB", 0),
			MaxRetries:      r.getIntEnv("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: r.getDurationEnv("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff: r.getDurationEnv("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
			DialTimeout:     r.getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     r.getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    r.getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:        r.getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns:    r.getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			MaxConnAge:      r.getDurationEnv("REDIS_MAX_CONN_AGE", 0),
			PoolTimeout:     r.getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:     r.getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			TTL:             r.getDurationEnv("REDIS_TTL", 10*time.Minute),
		},
		Asynq: AsynqConfig{
			Enabled:              r.getBoolEnv("ASYNQ_ENABLED", true),
			RedisAddr:            fmt.Sprintf("%s:%s", r.getEnv("REDIS_HOST", "localhost"), r.getEnv("REDIS_PORT", "6379")),
			RedisPassword:        r.getEnv("REDIS_PASSWORD", ""),
			RedisDB:              r.getIntEnv("ASYNQ_REDIS_DB", 0),
			Concurrency:          r.getIntEnv("ASYNQ_CONCURRENCY", 4),
			Queues:               parseQueues(r.getEnv("ASYNQ_QUEUES", "critical:6,default:3,low:1")),
			StrictPriority:       r.getBoolEnv("ASYNQ_STRICT_PRIORITY", false),
			RetryMax:             r.getIntEnv("ASYNQ_RETRY_MAX", 3),
			ShutdownTimeout:      r.getDurationEnv("ASYNQ_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthCheckInterval:  r.getDurationEnv("ASYNQ_HEALTH_CHECK_INTERVAL", 30*time.Second),
			DelayedTaskCheckTime: r.getDurationEnv("ASYNQ_DELAYED_TASK_CHECK", 5*time.Second),
			WarmSchedule:         r.getEnv("ASYNQ_WARM_SCHEDULE", ""),
			MetricsAddr:          r.getEnv("WORKER_METRICS_ADDR", ""),
		},
		AWS: AWSConfig{
			Region:          r.getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     r.getEnv("AWS_ACCESS_KEY_ID", "minioadmin"),
			SecretAccessKey: r.getEnv("AWS_SECRET_ACCESS_KEY", "minioadmin123"),
			S3Bucket:        r.getEnv("AWS_S3_BUCKET", "catalog"),
			S3Endpoint:      r.getEnv("AWS_S3_ENDPOINT", ""),
			UsePathStyle:    r.getBoolEnv("AWS_S3_PATH_STYLE", env == "development"),
			SecretsProvider: r.getEnv("SECRETS_PROVIDER", "env"),
			SecretName:      r.getEnv("AWS_SECRET_NAME", "catalog-be"),
		},
		Security: SecurityConfig{
			RateLimitRequests: r.getIntEnv("RATE_LIMIT_REQUESTS", 300),
			RateLimitDuration: r.getDurationEnv("RATE_LIMIT_DURATION", time.Minute),
			AllowedOrigins:    r.getSliceEnv("ALLOWED_ORIGINS", []string{"*"}),
			TrustedProxies:    r.getSliceEnv("TRUSTED_PROXIES", []string{}),
			SecureHeaders:     r.getBoolEnv("SECURE_HEADERS", env == "production"),
			RequestIDHeader:   r.getEnv("REQUEST_ID_HEADER", "X-Request-ID"),
		},
		Server: ServerConfig{
			Host:              r.getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              r.getEnv("SERVER_PORT", "8080"),
			ReadTimeout:       r.getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      r.getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       r.getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:    r.getIntEnv("SERVER_MAX_HEADER_BYTES", 1<<20), // 1 MB
			GracefulTimeout:   r.getDurationEnv("SERVER_GRACEFUL_TIMEOUT", 30*time.Second),
			EnablePprof:       r.getBoolEnv("ENABLE_PPROF", env == "development"),
			EnableMetrics:     r.getBoolEnv("ENABLE_METRICS", true),
			EnableHealthCheck: r.getBoolEnv("ENABLE_HEALTH_CHECK", true),
			EnableCompression: r.getBoolEnv("ENABLE_COMPRESSION", true),
			TLSEnabled:        r.getBoolEnv("TLS_ENABLED", false),
			TLSCertFile:       r.getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:        r.getEnv("TLS_KEY_FILE", ""),
		},
		Browse: BrowseConfig{
			APIBaseURL:         r.getEnv("BROWSE_API_URL", "http://localhost:8080"),
			RequestTimeout:     r.getDurationEnv("BROWSE_REQUEST_TIMEOUT", 10*time.Second),
			NearMargin:         r.getIntEnv("BROWSE_NEAR_MARGIN", 200),
			FarMargin:          r.getIntEnv("BROWSE_FAR_MARGIN", 400),
			Threshold:          r.getFloatEnv("BROWSE_THRESHOLD", 0.1),
			PollInterval:       r.getDurationEnv("BROWSE_POLL_INTERVAL", 50*time.Millisecond),
			StaleTime:          r.getDurationEnv("BROWSE_STALE_TIME", 5*time.Minute),
			MaxRetainedQueries: r.getIntEnv("BROWSE_MAX_RETAINED_QUERIES", 16),
			SearchDebounce:     r.getDurationEnv("BROWSE_SEARCH_DEBOUNCE", 300*time.Millisecond),
			ViewportHeight:     r.getIntEnv("BROWSE_VIEWPORT_HEIGHT", 900),
			RowHeight:          r.getIntEnv("BROWSE_ROW_HEIGHT", 360),
			Columns:            r.getIntEnv("BROWSE_COLUMNS", 4),
		},
		v: v,
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validators := []Validator{&BasicValidator{}, &SecurityValidator{}}
	if c.IsProduction() {
		validators = append(validators, &ProductionValidator{})
	}
	for _, v := range validators {
		if err := v.Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// WatchLogLevel invokes fn whenever the config file changes the log level.
// It is a no-op when no config file was loaded.
func (c *Config) WatchLogLevel(logger *slog.Logger, fn func(level string)) {
	if c.v == nil || c.App.ConfigFile == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		level := reader{v: c.v}.getEnv("LOG_LEVEL", c.App.LogLevel)
		logger.Info("config file changed",
			slog.String("file", e.Name),
			slog.String("log_level", level))
		fn(level)
	})
	c.v.WatchConfig()
}

// GetDatabaseURL returns the formatted database connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the formatted server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetRedisAddress returns the formatted Redis address
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "local"
}

// Helper functions

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "catalog-api")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CATALOG_SOURCE", SourceFile)
}

type reader struct {
	v *viper.Viper
}

func (r reader) getEnv(key, defaultValue string) string {
	if value := r.v.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func (r reader) getBoolEnv(key string, defaultValue bool) bool {
	if value := r.v.GetString(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func (r reader) getIntEnv(key string, defaultValue int) int {
	if value := r.v.GetString(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func (r reader) getFloatEnv(key string, defaultValue float64) float64 {
	if value := r.v.GetString(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func (r reader) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := r.v.GetString(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func (r reader) getSliceEnv(key string, defaultValue []string) []string {
	if value := r.v.GetString(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func parseQueues(queuesStr string) map[string]int {
	queues := make(map[string]int)
	pairs := strings.Split(queuesStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, ":")
		if len(parts) == 2 {
			name := strings.TrimSpace(parts[0])
			priority, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err == nil {
				queues[name] = priority
			}
		}
	}
	if len(queues) == 0 {
		queues["default"] = 1
	}
	return queues
}
