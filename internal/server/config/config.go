// Package config handles configuration for the sync server, including
// defaults, JSON overlay, environment variables, and command-line flags.
package config

import "time"

// Config holds runtime settings for the HaexSync server.
//
// Fields:
//   - Port: HTTP listen port.
//   - CORSOrigin: "*" or a comma-separated origin allowlist.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Mandatory.
//   - AuthURL / AuthServiceKey: identity provider base URL and the service
//     key required for admin operations.
//   - AuthJWTSecret: HS256 secret shared with the identity provider, used
//     to resolve bearer tokens to user ids without a network round-trip.
//   - S3Endpoint / S3RootUser / S3RootPassword / S3Region: the
//     S3-compatible backend the storage gateway forwards to. An empty
//     endpoint puts the storage routes into degraded (503) mode.
//   - S3BucketPrefix: per-user bucket prefix; "user" for self-hosted
//     backends, "storage" for deployments forwarding to a managed S3.
//   - StorageEncryptionKey: process secret encrypting storage credential
//     secrets at rest. Empty disables the credential service.
//   - Environment: reported by the health endpoint.
//   - ShutdownTimeout: drain deadline for graceful shutdown.
type Config struct {
	Port                 int
	CORSOrigin           string
	DatabaseDSN          string
	AuthURL              string
	AuthServiceKey       string
	AuthJWTSecret        string
	S3Endpoint           string
	S3RootUser           string
	S3RootPassword       string
	S3Region             string
	S3BucketPrefix       string
	StorageEncryptionKey string
	Environment          string
	ShutdownTimeout      time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Port = 3000
	c.CORSOrigin = "*"
	c.DatabaseDSN = ""
	c.AuthURL = "http://127.0.0.1:9999"
	c.AuthServiceKey = ""
	c.AuthJWTSecret = ""
	c.S3Endpoint = ""
	c.S3RootUser = ""
	c.S3RootPassword = ""
	c.S3Region = "us-east-1"
	c.S3BucketPrefix = "user"
	c.StorageEncryptionKey = ""
	c.Environment = "development"
	c.ShutdownTimeout = 10 * time.Second
}

// StorageConfigured reports whether the object backend is usable.
func (c *Config) StorageConfigured() bool {
	return c.S3Endpoint != "" && c.S3RootUser != "" && c.S3RootPassword != ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
