// Package config loads the paper catalog settings from defaults, an optional
// config.yaml and PAPERCATALOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL modes accepted by the database connection.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "PAPERCATALOG"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	S3       S3Config       `mapstructure:"s3"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig is the operations HTTP server (health, metrics, status).
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"             validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins turns on CORS for these origins; empty leaves it off.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds the PostgreSQL connection and pool settings.
type DatabaseConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	User string `mapstructure:"user"`
	// Password only comes from PAPERCATALOG_DATABASE_PASSWORD.
	Password string `mapstructure:"-"`
	Name     string `mapstructure:"name"     validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`

	MaxConns          int32         `mapstructure:"max_conns"           validate:"gtefield=MinConns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`

	// ConnectTimeout bounds one dial; ConnectAttempts and ConnectBackoff
	// drive the startup retry loop.
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"min=1"`
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"  validate:"min=0s"`

	MigrationPath          string `mapstructure:"migration_path"`
	StatementCacheCapacity int    `mapstructure:"statement_cache_capacity"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// OpenAlexConfig holds the source API client settings.
type OpenAlexConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// Email is sent as mailto for the polite pool.
	Email string `mapstructure:"email"`
	// APIKey only comes from PAPERCATALOG_OPENALEX_API_KEY.
	APIKey    string        `mapstructure:"-"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	BurstSize int           `mapstructure:"burst_size"`
	// MaxRetries is the transport retry count on 429/5xx. Zero means a
	// failed page surfaces immediately.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`
	PageSize   int `mapstructure:"page_size"   validate:"min=1,max=200"`

	// PageDelay is the polite pause after every page, kept within 100-150ms.
	PageDelay time.Duration `mapstructure:"page_delay" validate:"min=100ms,max=150ms"`
	// StrictIDPrefix requires the type marker to lead the trailing id segment.
	StrictIDPrefix bool `mapstructure:"strict_id_prefix"`
}

// IngestConfig holds the category run loop settings.
type IngestConfig struct {
	MaxRecords int           `mapstructure:"max_records" validate:"min=1"`
	PerBucket  int           `mapstructure:"per_bucket"  validate:"min=1"`
	WorkDelay  time.Duration `mapstructure:"work_delay"`
	Sort       string        `mapstructure:"sort"`
	// Categories restricts a run to these level-1 concept ids (e.g. C41008148).
	// Empty means every level-1 concept.
	Categories    []string `mapstructure:"categories"`
	EnrichAuthors bool     `mapstructure:"enrich_authors"`
	// LockKey is the advisory lock key that keeps ingestion single-writer.
	LockKey int64 `mapstructure:"lock_key"`
}

type SnapshotConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// KafkaConfig configures the new-paper event publisher.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `mapstructure:"topic"   validate:"required_if=Enabled true"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// S3Config configures snapshot shipping. The keys only come from the
// environment; without them the AWS default credential chain applies.
type S3Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region" validate:"required_if=Enabled true"`
	Bucket       string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix       string `mapstructure:"prefix"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	AccessKey    string `mapstructure:"-"`
	SecretKey    string `mapstructure:"-"`
}

// ScheduleConfig holds the cron expressions used by the schedule command.
type ScheduleConfig struct {
	IngestCron      string `mapstructure:"ingest_cron"`
	WeeklyResetCron string `mapstructure:"weekly_reset_cron"`
	RunOnStart      bool   `mapstructure:"run_on_start"`
}

// DSN returns the pgx connection URL.
func (c *DatabaseConfig) DSN() string {
	q := url.Values{"sslmode": {c.SSLMode}}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		q.Set("statement_cache_capacity", strconv.Itoa(c.StatementCacheCapacity))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Target names the database without credentials, for logs and errors.
func (c *DatabaseConfig) Target() string {
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Name)
}

// Address returns the operations server listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads defaults, then config.yaml from ., ./config or
// /etc/paper-catalog-service if present, then PAPERCATALOG_* variables, and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range []string{".", "./config", "/etc/paper-catalog-service"} {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	cfg.Database.Password = "postgres"
	if pw, ok := os.LookupEnv(EnvPrefix + "_DATABASE_PASSWORD"); ok {
		cfg.Database.Password = pw
	}
	cfg.OpenAlex.APIKey = os.Getenv(EnvPrefix + "_OPENALEX_API_KEY")
	cfg.S3.AccessKey = os.Getenv(EnvPrefix + "_S3_ACCESS_KEY")
	cfg.S3.SecretKey = os.Getenv(EnvPrefix + "_S3_SECRET_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
