package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	envFileName    = ".env"
	dataFileName   = "data.db"
	dirMode        = 0700
	fileMode       = 0600

	DefaultSystem  = "RBMI"
	DefaultWorkers = 4
	DefaultFormat  = "json"

	EnvDB       = "SBMI_DB"
	EnvSystem   = "SBMI_SYSTEM"
	EnvWorkers  = "SBMI_WORKERS"
	EnvLogLevel = "SBMI_LOG_LEVEL"
)

// Config represents app config object.
type Config struct {
	// DB is a sqlite file path or a postgres:// DSN.
	DB       string `yaml:"db"`
	System   string `yaml:"system"`
	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
	Format   string `yaml:"format"`
}

func getDefaultConfig(dirPath string) *Config {
	return &Config{
		DB:       filepath.Join(dirPath, dataFileName),
		System:   DefaultSystem,
		Workers:  DefaultWorkers,
		LogLevel: "info",
		Format:   DefaultFormat,
	}
}

// Validate fills unset fields with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.System == "" {
		c.System = DefaultSystem
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Format != "json" && c.Format != "yaml" {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	return nil
}

// ApplyEnv overrides fields with the SBMI_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDB); ok && v != "" {
		c.DB = v
	}
	if v, ok := lookup(EnvSystem); ok && v != "" {
		c.System = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvWorkers, v, err)
		}
		c.Workers = n
	}
	return nil
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, getDefaultConfig(dirPath)); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := getDefaultConfig(dirPath)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	return c, nil
}

// Load reads the config in dirPath and applies the environment on top of it:
// variables from dirPath/.env first, then the process environment.
func Load(dirPath string) (*Config, error) {
	c, err := ReadOrCreate(dirPath)
	if err != nil {
		return nil, err
	}

	file := make(map[string]string)
	envPath := filepath.Join(dirPath, envFileName)
	if _, err := os.Stat(envPath); err == nil {
		if file, err = godotenv.Read(envPath); err != nil {
			return nil, fmt.Errorf("error reading %s: %w", envPath, err)
		}
		slog.Debug("env file loaded", "path", envPath, "vars", len(file))
	}

	lookup := func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := file[k]
		return v, ok
	}
	if err := c.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
