// Package config loads the run's YAML document and overlays it with
// environment variables, the way original_source/config_manager.py's
// later variant layers os.Getenv on top of the plain YAML first cut.
// Each environment value is read from KEY, then from the file named by
// KEY_FILE; a value that resolves from neither takes its default or stays
// empty. No value is required, so an unset variable never produces a
// ConfigError.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itskum47/dnsblsentry/internal/errs"
	"go.yaml.in/yaml/v2"
)

// Zone is one blacklist DNS zone entry.
type Zone struct {
	Name          string `yaml:"name"`
	DNS           string `yaml:"dns"`
	RemovalLink   string `yaml:"removal_link"`
	RemovalMethod string `yaml:"removal_method"`
}

// Sqlite holds the Ledger's on-disk settings.
type Sqlite struct {
	DBPath          string `yaml:"db_path"`
	BulkUpdateCount int    `yaml:"bulk_update_count"`
}

// Document is the on-disk YAML shape: the zone set, CIDR prefixes, and
// the Ledger's sqlite settings. Connection secrets are never read from
// here — only from the environment, per §6.
type Document struct {
	Blacklists []Zone   `yaml:"blacklists"`
	Prefixes   []string `yaml:"prefixes"`
	Sqlite     Sqlite   `yaml:"sqlite"`
}

// Config is the fully resolved configuration: the YAML document plus
// every environment-sourced connection parameter.
type Config struct {
	Document

	RunEnv string

	MongoURL    string
	MongoDBName string

	RabbitMQHost             string
	RabbitMQPort             int
	RabbitMQUsername         string
	RabbitMQPassword         string
	RabbitMQDefaultQueue     string
	RabbitMQConcurrencyLimit int

	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUsername string
	PostgresPassword string

	AppLogPath   string
	ErrorLogPath string

	PrometheusPushgatewayURL string
	QueryRatePerSec          float64

	LedgerRetention string
}

// Load resolves RUN_ENV, reads the matching YAML document, and overlays
// environment variables for every connection secret, each falling back
// to <KEY>_FILE when unset. Load returns a *errs.ConfigError only when
// the document cannot be read or parsed or a numeric variable is
// malformed; unset variables take defaults or stay empty.
func Load() (*Config, error) {
	runEnv := envOr("RUN_ENV", "local")

	path := fmt.Sprintf("config/%s.yaml", runEnv)
	if runEnv == "local" {
		path = "config/local.yaml"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Key: path, Err: err}
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &errs.ConfigError{Key: path, Err: err}
	}
	if doc.Sqlite.BulkUpdateCount <= 0 {
		doc.Sqlite.BulkUpdateCount = 500
	}
	if doc.Sqlite.DBPath == "" {
		doc.Sqlite.DBPath = "dnsblsentry.db"
	}

	cfg := &Config{
		Document: doc,
		RunEnv:   runEnv,

		MongoURL:    resolveOptional("MONGO_URL"),
		MongoDBName: resolveOptional("MONGO_DB_NAME"),

		RabbitMQHost:             envOr("RABBITMQ_HOST", "localhost"),
		RabbitMQUsername:         resolveOptional("RABBITMQ_USERNAME"),
		RabbitMQPassword:         resolveOptional("RABBITMQ_PASSWORD"),
		RabbitMQDefaultQueue:     envOr("RABBITMQ_DEFAULT_QUEUE", "dnsbl_tasks"),

		PostgresHost:     resolveOptional("POSTGRES_HOST"),
		PostgresDB:       resolveOptional("POSTGRES_DB"),
		PostgresUsername: resolveOptional("POSTGRES_USERNAME"),
		PostgresPassword: resolveOptional("POSTGRES_PASSWORD"),

		AppLogPath:   envOr("APP_LOG_PATH", ""),
		ErrorLogPath: envOr("ERROR_LOG_PATH", ""),

		PrometheusPushgatewayURL: resolveOptional("PROMETHEUS_PUSHGATEWAY_URL"),

		LedgerRetention: envOr("LEDGER_RETENTION", ""),
	}

	var perr error
	cfg.RabbitMQPort, perr = intEnvOr("RABBITMQ_PORT", 5672)
	if perr != nil {
		return nil, &errs.ConfigError{Key: "RABBITMQ_PORT", Err: perr}
	}
	cfg.RabbitMQConcurrencyLimit, perr = intEnvOr("RABBITMQ_CONCURRENCY_LIMIT", 50)
	if perr != nil {
		return nil, &errs.ConfigError{Key: "RABBITMQ_CONCURRENCY_LIMIT", Err: perr}
	}
	cfg.PostgresPort, perr = intEnvOr("POSTGRES_PORT", 5432)
	if perr != nil {
		return nil, &errs.ConfigError{Key: "POSTGRES_PORT", Err: perr}
	}
	if rate := resolveOptional("DNSBL_QUERY_RATE_PER_SEC"); rate != "" {
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, &errs.ConfigError{Key: "DNSBL_QUERY_RATE_PER_SEC", Err: err}
		}
		cfg.QueryRatePerSec = f
	}

	if cfg.RabbitMQDefaultQueue == "" {
		return nil, &errs.ConfigError{Key: "RABBITMQ_DEFAULT_QUEUE", Err: fmt.Errorf("must not be empty")}
	}

	return cfg, nil
}

// resolveOptional reads KEY from the environment, falling back to the
// file named by KEY_FILE when KEY is unset. Returns "" if neither
// resolves — callers decide whether that's fatal.
func resolveOptional(key string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if filePath, ok := os.LookupEnv(key + "_FILE"); ok && filePath != "" {
		b, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}

func envOr(key, def string) string {
	if v := resolveOptional(key); v != "" {
		return v
	}
	return def
}

func intEnvOr(key string, def int) (int, error) {
	v := resolveOptional(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", v, err)
	}
	return n, nil
}
