package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/flagx"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/timex"
	"github.com/docker/go-units"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-value checks let a partial file overlay only the keys it names.
type JsonConfig struct {
	AppID string `json:"app_id"`

	StagingBucket   string `json:"staging_bucket"`
	StagingRegion   string `json:"staging_region"`
	StagingEndpoint string `json:"staging_endpoint"`

	CredentialsURL       string `json:"credentials_url"`
	PollURL              string `json:"poll_url"`
	MultipartCompleteURL string `json:"multipart_complete_url"`

	LedgerRPCURL     string `json:"ledger_rpc_url"`
	ContractAddress  string `json:"contract_address"`
	FunctionSelector string `json:"function_selector"`
	MerkleBucket     string `json:"merkle_bucket"`
	MerkleRegion     string `json:"merkle_region"`

	NetworkProfile   string          `json:"network_profile"`
	FileKeyLength    int             `json:"file_key_length"`
	BurnAfter        *timex.Duration `json:"burn_after"`
	RetryCountdown   *timex.Duration `json:"retry_countdown"`
	GiveUpAttempts   int             `json:"give_up_attempts"`
	TouchModulus     int             `json:"touch_modulus"`
	MultipartCutover json.RawMessage `json:"multipart_cutover"`

	LogFormat   string `json:"log_format"`
	LogLevel    string `json:"log_level"`
	MetricsAddr string `json:"metrics_addr"`
}

// parseJson overlays Config with values loaded from the file named by -c or
// -config. It panics on read or decode errors, as the rest of the loader does.
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

	if err := jc.apply(cfg); err != nil {
		panic(err)
	}
}

func (jc *JsonConfig) apply(cfg *Config) error {
	setString(&cfg.AppID, jc.AppID)
	setString(&cfg.StagingBucket, jc.StagingBucket)
	setString(&cfg.StagingRegion, jc.StagingRegion)
	setString(&cfg.StagingEndpoint, jc.StagingEndpoint)
	setString(&cfg.CredentialsURL, jc.CredentialsURL)
	setString(&cfg.PollURL, jc.PollURL)
	setString(&cfg.MultipartCompleteURL, jc.MultipartCompleteURL)
	setString(&cfg.LedgerRPCURL, jc.LedgerRPCURL)
	setString(&cfg.ContractAddress, jc.ContractAddress)
	setString(&cfg.FunctionSelector, jc.FunctionSelector)
	setString(&cfg.MerkleBucket, jc.MerkleBucket)
	setString(&cfg.MerkleRegion, jc.MerkleRegion)
	setString(&cfg.NetworkProfile, jc.NetworkProfile)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)

	if jc.FileKeyLength != 0 {
		cfg.FileKeyLength = jc.FileKeyLength
	}
	if jc.GiveUpAttempts != 0 {
		cfg.GiveUpAttempts = jc.GiveUpAttempts
	}
	if jc.TouchModulus != 0 {
		cfg.TouchModulus = jc.TouchModulus
	}
	if jc.BurnAfter != nil {
		cfg.BurnAfter = jc.BurnAfter.Duration
	}
	if jc.RetryCountdown != nil {
		cfg.RetryCountdown = jc.RetryCountdown.Duration
	}

	if len(jc.MultipartCutover) > 0 {
		n, err := parseSize(jc.MultipartCutover)
		if err != nil {
			return fmt.Errorf("multipart_cutover: %w", err)
		}
		cfg.MultipartCutover = n
	}
	return nil
}

// parseSize accepts either a JSON number of bytes or a human size string.
func parseSize(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return units.RAMInBytes(s)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
