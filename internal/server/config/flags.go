package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-i int      database check interval, seconds
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	checkInterval := fs.Int("i", int(config.CheckInterval.Seconds()), "database check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CheckInterval = time.Duration(*checkInterval) * time.Second
}
