// Package config handles configuration loading for the eSocial server.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax), so database credentials and
// endpoint overrides can be injected at runtime.
//
// # Configuration Sections
//
//   - server: HTTP server settings (port, TLS, base path)
//   - esocial: reception service environment and HTTPS client settings
//   - signing: certificate checks performed before signing
//   - catalog: event schema catalog file (embedded default when empty)
//   - storage: event queue backend (memory or MongoDB)
//   - log: log level
//
// # Example Configuration
//
//	server:
//	  port: 8080
//
//	esocial:
//	  environment: restricted
//	  timeout: 60s
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: esocial
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-esocial/pkg/esocial"
)

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	ESocial ESocialConfig `yaml:"esocial"`
	Signing SigningConfig `yaml:"signing"`
	Catalog CatalogConfig `yaml:"catalog"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	// MaxUploadBytes bounds multipart requests carrying a PFX.
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
	TLS            struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
}

// ESocialConfig selects the reception service.
type ESocialConfig struct {
	// Environment is "production" or "restricted"
	Environment string `yaml:"environment"`
	// Endpoint overrides the environment's URL
	Endpoint           string        `yaml:"endpoint"`
	SOAPAction         string        `yaml:"soapAction"`
	Timeout            time.Duration `yaml:"timeout"`
	RootCAFile         string        `yaml:"rootCAFile"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	// DuplicateWindow is how long a transmitted Id stays reserved
	DuplicateWindow time.Duration `yaml:"duplicateWindow"`
	// MaxResponseBytes caps the stored response body
	MaxResponseBytes int64 `yaml:"maxResponseBytes"`
}

// SigningConfig holds certificate checks run before signing
type SigningConfig struct {
	CheckValidity   bool          `yaml:"checkValidity"`
	CheckRevocation bool          `yaml:"checkRevocation"`
	OCSPTimeout     time.Duration `yaml:"ocspTimeout"`
	// StrictRevocation fails signing when no revocation source answers
	StrictRevocation bool `yaml:"strictRevocation"`
}

// CatalogConfig locates the event schema catalog
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig holds event queue settings
type StorageConfig struct {
	// Type is "memory" or "mongodb"
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML bytes. An empty document yields the
// defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, _ := Parse(nil)
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/"
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.ESocial.Environment == "" {
		c.ESocial.Environment = string(esocial.EnvironmentRestricted)
	}
	if c.ESocial.Timeout == 0 {
		c.ESocial.Timeout = 60 * time.Second
	}
	if c.ESocial.DuplicateWindow == 0 {
		c.ESocial.DuplicateWindow = 24 * time.Hour
	}
	if c.ESocial.MaxResponseBytes == 0 {
		c.ESocial.MaxResponseBytes = 4 << 20
	}
	if c.Signing.OCSPTimeout == 0 {
		c.Signing.OCSPTimeout = 10 * time.Second
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "esocial"
	}
	if c.Storage.MongoDB.Collection == "" {
		c.Storage.MongoDB.Collection = "events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.certFile and server.tls.keyFile are required when TLS is enabled")
	}

	if _, err := esocial.ParseEnvironment(c.ESocial.Environment); err != nil {
		return fmt.Errorf("esocial.environment: %w", err)
	}
	if c.ESocial.MaxResponseBytes < 0 {
		return fmt.Errorf("esocial.maxResponseBytes must not be negative, got %d", c.ESocial.MaxResponseBytes)
	}

	switch c.Storage.Type {
	case "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory' or 'mongodb', got '%s'", c.Storage.Type)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got '%s'", c.Log.Level)
	}

	return nil
}

// Environment returns the parsed eSocial environment.
func (c *Config) Environment() esocial.Environment {
	env, _ := esocial.ParseEnvironment(c.ESocial.Environment)
	return env
}
