// Package config loads runtime configuration for the send client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-app string        application id used in staging paths
//	-bucket string     staging bucket
//	-region string     staging bucket region
//	-profile string    network profile: desktop or mobile
//	-key-len int       file key length in bytes (32, 64 or 128)
//	-burn int          burn-after period (hours)
//	-log-format string text, json or zerolog
//	-log-level string  debug, info, warn or error
//	-metrics string    listen address for /metrics (empty disables)
//
// # JSON schema
//
// Durations go through timex.Duration, so values can be either strings like
// "90s" or integer nanoseconds. multipart_cutover accepts a human size such
// as "10MiB" or a byte count:
//
//	{
//	  "app_id": "com.4th-a.storm4",
//	  "staging_bucket": "com.4th-a.user-content-staging",
//	  "staging_region": "us-west-2",
//	  "retry_countdown": "90s",
//	  "give_up_attempts": 50,
//	  "touch_modulus": 17,
//	  "multipart_cutover": "10MiB"
//	}
//
// Fields missing from the JSON file keep their previous value.
package config
