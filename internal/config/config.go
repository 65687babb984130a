// Package config handles configuration for bizkeeper, including defaults,
// JSON overlay, and command-line flags.
package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings.
//
// Fields:
//   - DataDir: root for the local database, credentials and backups.
//   - DatabaseDSN: SQLite DSN of the local key-value store; derived from DataDir when empty.
//   - CredentialsFile: encrypted credential store; derived from DataDir when empty.
//   - HealthEndpointAddr: host:port of the gRPC health endpoint used for connectivity checks.
//   - OnlineCheckInterval: how often connectivity is checked.
//   - RemoteDSN: PostgreSQL DSN (pgx) receiving replayed offline changes; empty disables replay handlers.
//   - RemoteTimeout: upper bound for each remote object-store call.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint:
//     object storage for backup copies; an empty bucket disables cloud copies.
//   - ShareDir: outbox directory for shared backups; empty disables sharing.
//   - ScheduleCheckInterval: how often the auto-backup schedule is evaluated.
//   - Verbose: enables debug logging.
type Config struct {
	DataDir               string
	DatabaseDSN           string
	CredentialsFile       string
	HealthEndpointAddr    string
	OnlineCheckInterval   time.Duration
	RemoteDSN             string
	RemoteTimeout         time.Duration
	S3RootUser            string
	S3RootPassword        string
	S3Bucket              string
	S3Region              string
	S3BaseEndpoint        string
	ShareDir              string
	ScheduleCheckInterval time.Duration
	Verbose               bool
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "bizkeeper-data"
	c.HealthEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.RemoteTimeout = 30 * time.Second
	c.S3Region = "us-east-1"
	c.ScheduleCheckInterval = time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// LocalDSN returns the SQLite DSN, defaulting to DataDir/local.db.
func (c *Config) LocalDSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	return filepath.Join(c.DataDir, "local.db")
}

// CredentialsPath returns the credential store file, defaulting to
// DataDir/credentials.json.
func (c *Config) CredentialsPath() string {
	if c.CredentialsFile != "" {
		return c.CredentialsFile
	}
	return filepath.Join(c.DataDir, "credentials.json")
}

// BackupDir is where local backups are written.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}
