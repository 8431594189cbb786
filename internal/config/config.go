// Package config carga la configuración en capas: defaults, archivo YAML opcional y variables de entorno.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"pet-diary/internal/platform/validation"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Store    StoreConfig    `koanf:"store"`
	Blob     BlobConfig     `koanf:"blob"`
	Auth     AuthConfig     `koanf:"auth"`
	Emulator EmulatorConfig `koanf:"emulator"`
}

type ServerConfig struct {
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	Tracing           bool          `koanf:"tracing"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
	App    string `koanf:"app"`
}

type StoreConfig struct {
	Driver     string `koanf:"driver" validate:"oneof=memory badger postgres"`
	DSN        string `koanf:"dsn" validate:"required_if=Driver postgres"`
	BadgerPath string `koanf:"badger_path"`
	Tracing    bool   `koanf:"tracing"`
}

type BlobConfig struct {
	Driver          string `koanf:"driver" validate:"oneof=memory s3"`
	Bucket          string `koanf:"bucket" validate:"required_if=Driver s3"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	PublicBaseURL   string `koanf:"public_base_url"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	MaxUploadBytes  int64  `koanf:"max_upload_bytes" validate:"min=1"`
}

type AuthConfig struct {
	Mode          string        `koanf:"mode" validate:"oneof=debug jwt remote"`
	JWTSecret     string        `koanf:"jwt_secret" validate:"required_if=Mode jwt"`
	JWTIssuer     string        `koanf:"jwt_issuer"`
	RemoteBaseURL string        `koanf:"remote_base_url" validate:"required_if=Mode remote"`
	RemoteAPIKey  string        `koanf:"remote_api_key"`
	Timeout       time.Duration `koanf:"timeout"`
}

// EmulatorConfig redirige auth, store y blob a emuladores locales.
type EmulatorConfig struct {
	Enabled   bool   `koanf:"enabled"`
	AuthHost  string `koanf:"auth_host"`
	StoreHost string `koanf:"store_host"`
	BlobHost  string `koanf:"blob_host"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			App:    "pet-diary",
		},
		Store: StoreConfig{
			Driver:     "memory",
			BadgerPath: "data/badger",
		},
		Blob: BlobConfig{
			Driver:         "memory",
			Region:         "us-east-1",
			MaxUploadBytes: 10 << 20,
		},
		Auth: AuthConfig{
			Mode:    "debug",
			Timeout: 10 * time.Second,
		},
		Emulator: EmulatorConfig{
			AuthHost:  "127.0.0.1:9099",
			StoreHost: "127.0.0.1:5432",
			BlobHost:  "127.0.0.1:9000",
		},
	}
}

// Load arma la configuración. Precedencia: env > archivo > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.applyEmulator()

	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEmulator apunta los tres servicios a los emuladores locales.
func (c *Config) applyEmulator() {
	if !c.Emulator.Enabled {
		return
	}

	if c.Auth.Mode == "remote" || c.Auth.Mode == "debug" {
		c.Auth.Mode = "remote"
		c.Auth.RemoteBaseURL = "http://" + c.Emulator.AuthHost
		if c.Auth.RemoteAPIKey == "" {
			c.Auth.RemoteAPIKey = "emulator"
		}
	}

	if c.Store.Driver == "postgres" {
		c.Store.DSN = withHost(c.Store.DSN, c.Emulator.StoreHost)
	}

	c.Blob.Driver = "s3"
	c.Blob.Endpoint = "http://" + c.Emulator.BlobHost
	if c.Blob.Bucket == "" {
		c.Blob.Bucket = "pet-diary"
	}
	if c.Blob.AccessKeyID == "" {
		c.Blob.AccessKeyID = "emulator"
		c.Blob.SecretAccessKey = "emulator"
	}
	if c.Blob.PublicBaseURL == "" {
		c.Blob.PublicBaseURL = c.Blob.Endpoint + "/" + c.Blob.Bucket
	}
}

func withHost(dsn, host string) string {
	if strings.TrimSpace(dsn) == "" {
		return "postgres://postgres:postgres@" + host + "/petdiary?sslmode=disable"
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return dsn
	}
	u.Host = host
	return u.String()
}

// listPaths llegan por env como "a,b,c".
var listPaths = []string{"server.cors_origins"}

func splitLists(k *koanf.Koanf) error {
	for _, path := range listPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"port":                  "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"tracing_enabled":       "server.tracing",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"app_name":   "logging.app",

	"store_driver": "store.driver",
	"db_dsn":       "store.dsn",
	"badger_path":  "store.badger_path",
	"db_tracing":   "store.tracing",

	"blob_driver":           "blob.driver",
	"blob_bucket":           "blob.bucket",
	"aws_region":            "blob.region",
	"blob_endpoint":         "blob.endpoint",
	"blob_public_base_url":  "blob.public_base_url",
	"aws_access_key_id":     "blob.access_key_id",
	"aws_secret_access_key": "blob.secret_access_key",
	"blob_max_upload_bytes": "blob.max_upload_bytes",

	"auth_mode":     "auth.mode",
	"jwt_secret":    "auth.jwt_secret",
	"jwt_issuer":    "auth.jwt_issuer",
	"auth_base_url": "auth.remote_base_url",
	"auth_api_key":  "auth.remote_api_key",
	"auth_timeout":  "auth.timeout",

	"use_emulators":       "emulator.enabled",
	"emulator_auth_host":  "emulator.auth_host",
	"emulator_store_host": "emulator.store_host",
	"emulator_blob_host":  "emulator.blob_host",
}

// envTransform traduce nombres de env a paths de koanf; las claves no mapeadas se ignoran.
func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
