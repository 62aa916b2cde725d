package config

import (
	"errors"
	"fmt"
	"time"
)

// Network profiles. Mobile clients never upload more than one part at a time.
const (
	ProfileDesktop = "desktop"
	ProfileMobile  = "mobile"
)

// Config holds runtime settings for the send client.
//
// Units: durations are time.Duration, MultipartCutover is in bytes.
type Config struct {
	AppID string

	StagingBucket   string
	StagingRegion   string
	StagingEndpoint string

	CredentialsURL       string
	PollURL              string
	MultipartCompleteURL string

	LedgerRPCURL     string
	ContractAddress  string
	FunctionSelector string
	MerkleBucket     string
	MerkleRegion     string

	NetworkProfile   string
	FileKeyLength    int
	BurnAfter        time.Duration
	RetryCountdown   time.Duration
	GiveUpAttempts   int
	TouchModulus     int
	MultipartCutover int64

	LogFormat   string
	LogLevel    string
	MetricsAddr string
}

// LoadDefaults populates c with production defaults.
func (c *Config) LoadDefaults() {
	c.AppID = "com.4th-a.storm4"

	c.StagingBucket = "com.4th-a.user-content-staging"
	c.StagingRegion = "us-west-2"
	c.StagingEndpoint = ""

	c.CredentialsURL = "https://api.storm4.cloud/v1/credentials/anonymous"
	c.PollURL = "https://api.storm4.cloud/v1/poll-request"
	c.MultipartCompleteURL = "https://api.storm4.cloud/v1/multipart-complete"

	c.LedgerRPCURL = "https://mainnet.infura.io/v3/"
	c.ContractAddress = "0xf8cadbcadbeac3b5192ba29df5007746054102a4"
	c.FunctionSelector = "0xf2dd2e8e"
	c.MerkleBucket = "com.4th-a.merkle-trees"
	c.MerkleRegion = "us-west-2"

	c.NetworkProfile = ProfileDesktop
	c.FileKeyLength = 64
	c.BurnAfter = 30 * 24 * time.Hour
	c.RetryCountdown = 90 * time.Second
	c.GiveUpAttempts = 50
	c.TouchModulus = 17
	c.MultipartCutover = 10 * 1024 * 1024

	c.LogFormat = "text"
	c.LogLevel = "info"
	c.MetricsAddr = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// Validate reports settings the upload pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.FileKeyLength {
	case 32, 64, 128:
	default:
		errs = append(errs, fmt.Errorf("file key length %d: must be 32, 64 or 128", c.FileKeyLength))
	}
	if c.NetworkProfile != ProfileDesktop && c.NetworkProfile != ProfileMobile {
		errs = append(errs, fmt.Errorf("unknown network profile %q", c.NetworkProfile))
	}
	if c.GiveUpAttempts <= 0 {
		errs = append(errs, errors.New("give_up_attempts must be positive"))
	}
	if c.TouchModulus <= 0 {
		errs = append(errs, errors.New("touch_modulus must be positive"))
	}
	if c.MultipartCutover <= 0 {
		errs = append(errs, errors.New("multipart_cutover must be positive"))
	}
	if c.AppID == "" || c.StagingBucket == "" {
		errs = append(errs, errors.New("app id and staging bucket are required"))
	}
	return errors.Join(errs...)
}
