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
//	-d string   data directory
//	-l string   local SQLite DSN
//	-k string   credential store file
//	-a string   gRPC health endpoint address
//	-i int      online check interval, seconds
//	-r string   remote PostgreSQL DSN
//	-t int      remote call timeout, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-o string   share outbox directory
//	-s int      schedule check interval, minutes
//	-v          verbose logging
//
// Only the flags above are taken from os.Args (see flagx.FilterArgs). A
// malformed value panics.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-d", "-l", "-k", "-a", "-i", "-r", "-t", "-u", "-p", "-b", "-g", "-e", "-o", "-s", "-v",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DatabaseDSN, "l", cfg.DatabaseDSN, "local database DSN")
	fs.StringVar(&cfg.CredentialsFile, "k", cfg.CredentialsFile, "credential store file")
	fs.StringVar(&cfg.HealthEndpointAddr, "a", cfg.HealthEndpointAddr, "address and port of the health endpoint")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.RemoteDSN, "r", cfg.RemoteDSN, "remote database DSN")
	remoteTimeout := fs.Int("t", int(cfg.RemoteTimeout.Seconds()), "remote call timeout (in seconds)")
	fs.StringVar(&cfg.S3RootUser, "u", cfg.S3RootUser, "S3 root user")
	fs.StringVar(&cfg.S3RootPassword, "p", cfg.S3RootPassword, "S3 root password")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.ShareDir, "o", cfg.ShareDir, "share outbox directory")
	scheduleInterval := fs.Int("s", int(cfg.ScheduleCheckInterval.Minutes()), "schedule check interval (in minutes)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.RemoteTimeout = time.Duration(*remoteTimeout) * time.Second
	cfg.ScheduleCheckInterval = time.Duration(*scheduleInterval) * time.Minute
}
