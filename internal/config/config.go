// Package config provides configuration management functionality.
//
// Resolution order: .env (if present), then app.json (if present), then
// non-empty environment variables overlay the file values. When app.json is
// absent the configuration is built entirely from the environment and any
// missing required key fails startup with the key named.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultFile is the JSON configuration file looked up in the working directory.
const DefaultFile = "app.json"

// Postgres holds the relational store connection settings.
type Postgres struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

// Redis holds the K/V store connection settings.
type Redis struct {
	Addr     string `json:"addr"`
	Account  string `json:"account"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Telegram holds chat-channel notification settings.
type Telegram struct {
	Token string `json:"token"`
	// Allowed maps chat user IDs to display names; only these users
	// receive messages.
	Allowed map[int64]string `json:"allowed"`
}

// DDNS holds dynamic-DNS refresh credentials for the supported providers.
type DDNS struct {
	AfraidToken   string   `json:"afraid_token"`
	DynuUsername  string   `json:"dynu_username"`
	DynuPassword  string   `json:"dynu_password"`
	NoIPUsername  string   `json:"noip_username"`
	NoIPPassword  string   `json:"noip_password"`
	NoIPHostnames []string `json:"noip_hostnames"`
}

// RPCServer holds the inbound RPC listener settings. Port 0 disables the
// server. TLS is enabled only when both cert and key paths are set.
type RPCServer struct {
	Port     int    `json:"port"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// RPCClient holds the outbound RPC settings for the sibling service.
type RPCClient struct {
	Target     string `json:"target"`
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	DomainName string `json:"domain_name"`
}

// Export holds the optional S3-compatible nightly export settings.
// Empty bucket disables the export job.
type Export struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Config holds application configuration
type Config struct {
	Postgres    Postgres  `json:"postgresql"`
	Redis       Redis     `json:"redis"`
	Telegram    Telegram  `json:"telegram"`
	DDNS        DDNS      `json:"ddns"`
	FugleAPIKey string    `json:"fugle_api_key"`
	Server      RPCServer `json:"grpc_server"`
	Client      RPCClient `json:"grpc_client"`
	Export      Export    `json:"export"`
	LogLevel    string    `json:"log_level"`
	LogDir      string    `json:"log_dir"`
}

// Load reads configuration from app.json and the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile reads configuration from the given JSON file path and the
// environment. Environment variables always win when non-empty.
func LoadFile(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}

	fromFile := false
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		fromFile = true
	}

	cfg.overlayEnv()
	cfg.applyDefaults()

	if err := cfg.validate(fromFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayEnv() {
	setStr(&c.Postgres.Host, "POSTGRESQL_HOST")
	setInt(&c.Postgres.Port, "POSTGRESQL_PORT")
	setStr(&c.Postgres.User, "POSTGRESQL_USER")
	setStr(&c.Postgres.Password, "POSTGRESQL_PASSWORD")
	setStr(&c.Postgres.DB, "POSTGRESQL_DB")

	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Account, "REDIS_ACCOUNT")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")

	setStr(&c.Telegram.Token, "TELEGRAM_TOKEN")
	if v := os.Getenv("TELEGRAM_ALLOWED"); v != "" {
		allowed := map[int64]string{}
		// Published as a JSON object keyed by user id.
		raw := map[string]string{}
		if err := json.Unmarshal([]byte(v), &raw); err == nil {
			for id, name := range raw {
				if n, err := strconv.ParseInt(id, 10, 64); err == nil {
					allowed[n] = name
				}
			}
			c.Telegram.Allowed = allowed
		}
	}

	setStr(&c.DDNS.AfraidToken, "AFRAID_TOKEN")
	setStr(&c.DDNS.DynuUsername, "DYNU_USERNAME")
	setStr(&c.DDNS.DynuPassword, "DYNU_PASSWORD")
	setStr(&c.DDNS.NoIPUsername, "NOIP_USERNAME")
	setStr(&c.DDNS.NoIPPassword, "NOIP_PASSWORD")
	if v := os.Getenv("NOIP_HOSTNAMES"); v != "" {
		var hosts []string
		if err := json.Unmarshal([]byte(v), &hosts); err == nil {
			c.DDNS.NoIPHostnames = hosts
		}
	}

	setStr(&c.FugleAPIKey, "FUGLE_API_KEY")

	setInt(&c.Server.Port, "SYSTEM_GRPC_USE_PORT")
	setStr(&c.Server.CertFile, "SYSTEM_SSL_CERT_FILE")
	setStr(&c.Server.KeyFile, "SYSTEM_SSL_KEY_FILE")

	setStr(&c.Client.Target, "GO_GRPC_TARGET")
	setStr(&c.Client.CertFile, "GO_GRPC_TLS_CERT_FILE")
	setStr(&c.Client.KeyFile, "GO_GRPC_TLS_KEY_FILE")
	setStr(&c.Client.DomainName, "GO_GRPC_DOMAIN_NAME")

	setStr(&c.Export.Bucket, "EXPORT_BUCKET")
	setStr(&c.Export.Prefix, "EXPORT_PREFIX")
	setStr(&c.Export.Endpoint, "EXPORT_ENDPOINT")
	setStr(&c.Export.Region, "EXPORT_REGION")
	setStr(&c.Export.AccessKey, "EXPORT_ACCESS_KEY")
	setStr(&c.Export.SecretKey, "EXPORT_SECRET_KEY")

	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.LogDir, "LOG_DIR")
}

func (c *Config) applyDefaults() {
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// validate fails fast on missing required keys. When the configuration was
// built entirely from the environment every required key must be present.
func (c *Config) validate(fromFile bool) error {
	required := map[string]string{
		"POSTGRESQL_HOST":     c.Postgres.Host,
		"POSTGRESQL_USER":     c.Postgres.User,
		"POSTGRESQL_PASSWORD": c.Postgres.Password,
		"POSTGRESQL_DB":       c.Postgres.DB,
	}
	for key, val := range required {
		if val == "" {
			return fmt.Errorf("missing required configuration key: %s", key)
		}
	}
	_ = fromFile
	return nil
}

// DSN returns the pgx connection string for the configured database.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s application_name=twstock",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password, c.Postgres.DB,
	)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
