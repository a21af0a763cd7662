// Package config loads service configuration from defaults, an optional YAML file,
// a .env file and FERN_ prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Ramsey-B/fern/pkg/cache"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/etl"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// EnvPrefix marks the environment variables that override configuration. A double
	// underscore descends one level: FERN_DATABASE__MAX_OPEN_CONNS is database.max_open_conns.
	EnvPrefix = "FERN_"

	// ConfigPathEnvVar names an explicit YAML config file.
	ConfigPathEnvVar = "FERN_CONFIG_PATH"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// DefaultConfigPaths are searched when no explicit path is given.
var DefaultConfigPaths = []string{"fern.yaml", "fern.yml", "/etc/fern/config.yaml"}

type Config struct {
	ServiceName        string `koanf:"service_name" validate:"required"`
	LogLevel           string `koanf:"log_level" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `koanf:"pretty_logs"`
	StartupMaxAttempts int    `koanf:"startup_max_attempts" validate:"gte=1"`

	HTTP       HTTPConfig               `koanf:"http"`
	Database   database.Config          `koanf:"database"`
	Migration  database.MigrationConfig `koanf:"migration"`
	Redis      cache.Config             `koanf:"redis"`
	Locks      LocksConfig              `koanf:"locks"`
	Kafka      kafka.Config             `koanf:"kafka"`
	Neo4j      graph.Config             `koanf:"neo4j"`
	Tracing    tracing.Config           `koanf:"tracing"`
	Etl        EtlConfig                `koanf:"etl"`
	Similarity similarity.Config        `koanf:"similarity"`
	Matching   matching.DetectorConfig  `koanf:"matching"`
}

type HTTPConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr is the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type LocksConfig struct {
	Backend string                  `koanf:"backend" validate:"oneof=local redis"`
	Redis   locks.RedisLockerConfig `koanf:"redis"`
}

type EtlConfig struct {
	Pipeline etl.Config `koanf:"pipeline"`
	RawgPath string     `koanf:"rawg_path"`
	IgdbPath string     `koanf:"igdb_path"`
}

// RunRequest is the run the configured catalog exports describe.
func (c EtlConfig) RunRequest() etl.RunRequest {
	return etl.RunRequest{RawgPath: c.RawgPath, IgdbPath: c.IgdbPath}
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ServiceName:        "fern",
		LogLevel:           "info",
		StartupMaxAttempts: 5,
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			User:            "fern",
			Name:            "fern",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Migration: database.MigrationConfig{AutoRollback: true},
		Redis: cache.Config{
			Port: 6379,
			TTL:  cache.DefaultTTL,
		},
		Locks: LocksConfig{
			Backend: LockBackendLocal,
			Redis: locks.RedisLockerConfig{
				KeyPrefix: "fern:lock:",
				TTL:       30 * time.Second,
				Timeout:   10 * time.Second,
			},
		},
		Kafka: kafka.Config{
			RequiredAcks:     1,
			Compression:      "snappy",
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Tracing:    tracing.DefaultConfig(),
		Etl:        EtlConfig{Pipeline: etl.DefaultConfig()},
		Similarity: similarity.DefaultConfig(),
		Matching:   matching.DefaultDetectorConfig(),
	}
}

// Load builds the configuration. path may be empty, in which case FERN_CONFIG_PATH and
// DefaultConfigPaths are consulted and a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if c.Locks.Backend == LockBackendRedis && c.Redis.Host == "" {
		return errors.New("configuration validation failed: locks.backend redis requires redis.host")
	}
	return nil
}

// sliceKeys are read from the environment as comma separated lists.
var sliceKeys = map[string]bool{
	"kafka.brokers": true,
}

func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !sliceKeys[key] {
		return key, value
	}
	items := strings.Split(value, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return key, items
}

// envKey maps FERN_KAFKA__TOPIC_PREFIX to kafka.topic_prefix.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "config_path" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		return envPath
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
