// Package config loads procura's settings from a YAML file, the environment
// (optionally seeded from a .env file) and command-line overrides, in that
// order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/procura/internal/logging"
)

// Source kinds.
const (
	SourceDir  = "dir"
	SourceHTTP = "http"
	SourceGCS  = "gcs"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the complete configuration.
type Config struct {
	Database  string          `yaml:"database" validate:"required"`
	Layouts   string          `yaml:"layouts"`
	Log       logging.Config  `yaml:"log"`
	Source    SourceConfig    `yaml:"source"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Lock      LockConfig      `yaml:"lock"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Server    ServerConfig    `yaml:"server"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// SourceConfig selects where raw documents are fetched from.
type SourceConfig struct {
	Kind        string `yaml:"kind" validate:"oneof=dir http gcs"`
	Dir         string `yaml:"dir"`
	BaseURL     string `yaml:"base_url" validate:"required_if=Kind http,omitempty,url"`
	Bucket      string `yaml:"bucket" validate:"required_if=Kind gcs"`
	Prefix      string `yaml:"prefix"`
	Credentials string `yaml:"credentials"`
}

// IngestConfig tunes the batch driver.
type IngestConfig struct {
	Workers       int           `yaml:"workers" validate:"gte=1,lte=256"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" validate:"gte=0"`
	MaxTries      uint          `yaml:"max_tries" validate:"gte=1"`
	SkipUnchanged bool          `yaml:"skip_unchanged"`
	FailureLog    string        `yaml:"failure_log"`
}

// LockConfig selects the per-process lock.
type LockConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=local redis"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
}

// PubSubConfig configures the notification subscriber.
type PubSubConfig struct {
	Project        string `yaml:"project"`
	Subscription   string `yaml:"subscription"`
	MaxOutstanding int    `yaml:"max_outstanding" validate:"gte=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

// ReconcileConfig tunes the engine.
type ReconcileConfig struct {
	ImplicitCause string `yaml:"implicit_cause"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: "procura.db",
		Log:      logging.Config{Level: "info", Format: "text"},
		Source:   SourceConfig{Kind: SourceDir},
		Ingest: IngestConfig{
			Workers:      4,
			FetchTimeout: 10 * time.Second,
			MaxTries:     5,
		},
		Lock:   LockConfig{Backend: LockLocal, TTL: 30 * time.Second},
		PubSub: PubSubConfig{MaxOutstanding: 10},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads path (optional), applies the process environment after loading
// .env when present, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over cfg. Unknown keys are errors.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	str(&cfg.Database, "PROCURA_DB")
	str(&cfg.Layouts, "PROCURA_LAYOUTS")
	str(&cfg.Log.Level, "LOG_LEVEL")
	str(&cfg.Log.Format, "LOG_FORMAT")
	str(&cfg.Source.Kind, "PROCURA_SOURCE")
	str(&cfg.Source.Dir, "PROCURA_SOURCE_DIR")
	str(&cfg.Source.BaseURL, "PROCURA_BASE_URL")
	str(&cfg.Source.Bucket, "PROCURA_BUCKET")
	str(&cfg.Source.Prefix, "PROCURA_PREFIX")
	str(&cfg.Source.Credentials, "GOOGLE_APPLICATION_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS")
	str(&cfg.PubSub.Project, "PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT")
	str(&cfg.PubSub.Subscription, "PROCURA_SUBSCRIPTION")
	str(&cfg.Reconcile.ImplicitCause, "PROCURA_IMPLICIT_CAUSE")

	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		cfg.Lock.Backend = LockRedis
		cfg.Lock.RedisAddr = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Server.Port},
		{"PROCURA_WORKERS", &cfg.Ingest.Workers},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", e.key, v)
		}
		*e.dst = n
	}
	return nil
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
