package config

import (
	"flag"
	"os"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/flagx"
)

// Flags is the list of value-taking flags parseFlags understands. The CLI uses
// it to tell configuration flags apart from the files to send.
var Flags = []string{
	"-app", "-bucket", "-region", "-profile", "-key-len", "-burn",
	"-log-format", "-log-level", "-metrics",
}

// parseFlags populates selected Config fields from command-line flags.
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], Flags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.AppID, "app", cfg.AppID, "application id used in staging paths")
	fs.StringVar(&cfg.StagingBucket, "bucket", cfg.StagingBucket, "staging bucket")
	fs.StringVar(&cfg.StagingRegion, "region", cfg.StagingRegion, "staging bucket region")
	fs.StringVar(&cfg.NetworkProfile, "profile", cfg.NetworkProfile, "network profile (desktop or mobile)")
	fs.IntVar(&cfg.FileKeyLength, "key-len", cfg.FileKeyLength, "file key length in bytes")
	burn := fs.Int("burn", int(cfg.BurnAfter.Hours()), "burn-after period (in hours)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json, zerolog)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.BurnAfter = time.Duration(*burn) * time.Hour
}
