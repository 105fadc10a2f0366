// Package config loads the strata configuration file.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "strata.yaml"

// AutoSession asks for a fresh random session ID.
const AutoSession = "auto"

// Store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the file layout. Relative paths are resolved against the
// directory of the file.
type Config struct {
	Graph    string        `yaml:"graph"`
	Filters  string        `yaml:"filters"`
	Session  string        `yaml:"session" validate:"required"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	LogLevel string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	Watch    bool          `yaml:"watch"`
	Store    StoreConfig   `yaml:"store"`
	HTTP     HTTPConfig    `yaml:"http"`
}

// StoreConfig selects where filter stacks are snapshotted.
type StoreConfig struct {
	Backend          string      `yaml:"backend" validate:"oneof=file redis memory"`
	Path             string      `yaml:"path"`
	Redis            RedisConfig `yaml:"redis"`
	EncryptionKeyEnv string      `yaml:"encryption_key_env"`
	Redact           []string    `yaml:"redact"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Address  string        `yaml:"address" validate:"required_if=Enabled true"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	Enabled  bool          `yaml:"-"`
}

// HTTPConfig configures strata serve.
type HTTPConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Session:  "default",
		Debounce: 100 * time.Millisecond,
		LogLevel: "info",
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    filepath.Join(".strata", "sessions"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "strata:stack:",
			},
		},
		HTTP: HTTPConfig{Port: 8080},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults. An empty path tries DefaultFile; a
// missing file yields the defaults. JSON files are read as YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return cfg, cfg.Validate()
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, cfg.Validate()
}

func (c *Config) resolve(dir string) {
	for _, p := range []*string{&c.Graph, &c.Filters, &c.Store.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	c.Store.Redis.Enabled = c.Store.Backend == BackendRedis
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SessionID returns the configured session, or a new UUID for AutoSession.
func (c Config) SessionID() string {
	if c.Session == AutoSession {
		return uuid.NewString()
	}
	return c.Session
}

// Level parses LogLevel.
func (c Config) Level() slog.Level {
	l, _ := logging.ParseLevel(c.LogLevel)
	return l
}

// EncryptionKey reads the key named by EncryptionKeyEnv. It returns nil
// when encryption is not configured. Keys are hex or base64 encoded.
func (c Config) EncryptionKey() ([]byte, error) {
	name := c.Store.EncryptionKeyEnv
	if name == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("encryption key variable %s is empty", name)
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("encryption key in %s must be 32 bytes, hex or base64 encoded", name)
}
