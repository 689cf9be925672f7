package config

import "time"

// defaults seeds every key Load knows about. The database values match the
// docker-compose service the catalog shares with the web tier.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             9091,
	"server.read_timeout":     "10s",
	"server.write_timeout":    "10s",
	"server.shutdown_timeout": "15s",
	"server.allowed_origins":  []string{},

	"database.host":                     "postgres",
	"database.port":                     5432,
	"database.user":                     "postgres",
	"database.name":                     "paper_db",
	"database.ssl_mode":                 SSLModeDisable,
	"database.max_conns":                4,
	"database.min_conns":                1,
	"database.max_conn_lifetime":        "1h",
	"database.max_conn_idle_time":       "30m",
	"database.health_check_period":      "30s",
	"database.connect_timeout":          "10s",
	"database.connect_attempts":         10,
	"database.connect_backoff":          "3s",
	"database.migration_path":           "migrations",
	"database.statement_cache_capacity": 512,

	"logging.level":       "info",
	"logging.format":      "json",
	"logging.output":      "stdout",
	"logging.add_source":  false,
	"logging.time_format": time.RFC3339,

	"metrics.enabled":   true,
	"metrics.path":      "/metrics",
	"metrics.namespace": "paper_catalog",

	"openalex.base_url":         "https://api.openalex.org",
	"openalex.email":            "",
	"openalex.timeout":          "30s",
	"openalex.rate_limit":       10.0,
	"openalex.burst_size":       1,
	"openalex.max_retries":      0,
	"openalex.page_size":        200,
	"openalex.page_delay":       "120ms",
	"openalex.strict_id_prefix": false,

	"ingest.max_records":    1000,
	"ingest.per_bucket":     20,
	"ingest.work_delay":     "100ms",
	"ingest.sort":           "cited_by_count:desc",
	"ingest.categories":     []string{},
	"ingest.enrich_authors": false,
	"ingest.lock_key":       7_201_202_501,

	"snapshot.dir": "./data",

	"kafka.enabled":       false,
	"kafka.brokers":       []string{"localhost:9092"},
	"kafka.topic":         "new_paper",
	"kafka.batch_size":    1,
	"kafka.batch_timeout": "10ms",
	"kafka.write_timeout": "5s",

	// S3 stays off until a bucket is configured.
	"s3.enabled":        false,
	"s3.endpoint":       "",
	"s3.region":         "us-east-1",
	"s3.bucket":         "",
	"s3.prefix":         "paper-catalog/snapshots",
	"s3.use_path_style": true,

	"schedule.ingest_cron":       "0 3 * * *",
	"schedule.weekly_reset_cron": "0 0 * * 1",
	"schedule.run_on_start":      false,
}
