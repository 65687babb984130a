package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/bizkeeper/internal/flagx"
	"github.com/dmitrijs2005/bizkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// may be strings like "3s" or integer nanoseconds (see timex.Duration).
type JsonConfig struct {
	DataDir               string         `json:"data_dir"`
	DatabaseDSN           string         `json:"database_dsn"`
	CredentialsFile       string         `json:"credentials_file"`
	HealthEndpointAddr    string         `json:"health_endpoint_addr"`
	OnlineCheckInterval   timex.Duration `json:"online_check_interval"`
	RemoteDSN             string         `json:"remote_dsn"`
	RemoteTimeout         timex.Duration `json:"remote_timeout"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	ShareDir              string         `json:"share_dir"`
	ScheduleCheckInterval timex.Duration `json:"schedule_check_interval"`
	Verbose               *bool          `json:"verbose"`
}

// parseJson overlays cfg with the JSON file named by -c/-config or
// $BIZKEEPER_CONFIG. Fields missing from the file keep their current
// values. Read or decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.CredentialsFile, jc.CredentialsFile)
	setString(&cfg.HealthEndpointAddr, jc.HealthEndpointAddr)
	setString(&cfg.RemoteDSN, jc.RemoteDSN)
	setString(&cfg.S3RootUser, jc.S3RootUser)
	setString(&cfg.S3RootPassword, jc.S3RootPassword)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.ShareDir, jc.ShareDir)

	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RemoteTimeout.Duration > 0 {
		cfg.RemoteTimeout = jc.RemoteTimeout.Duration
	}
	if jc.ScheduleCheckInterval.Duration > 0 {
		cfg.ScheduleCheckInterval = jc.ScheduleCheckInterval.Duration
	}
	if jc.Verbose != nil {
		cfg.Verbose = *jc.Verbose
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
