package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/bizkeeper/internal/flagx"
	"github.com/dmitrijs2005/bizkeeper/internal/timex"
)

// JsonConfig is the JSON form of Config. CheckInterval accepts "5s" or
// integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc"`
	DatabaseDSN      string         `json:"database_dsn"`
	CheckInterval    timex.Duration `json:"check_interval"`
}

// parseJson overlays config with the file named by -c/-config or
// $BIZKEEPER_CONFIG. Absent fields keep their values; read or decode errors
// panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrGRPC != "" {
		config.EndpointAddrGRPC = c.EndpointAddrGRPC
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.CheckInterval.Duration > 0 {
		config.CheckInterval = c.CheckInterval.Duration
	}
}
