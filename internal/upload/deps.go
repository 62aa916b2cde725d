package upload

import (
	"context"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/backend"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/config"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/credcache"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cryptox"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/logging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/observability"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/storage"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/trust"
	"github.com/aws/aws-sdk-go-v2/aws"
)

// CredentialSource hands out the current staging identity.
type CredentialSource interface {
	Get(ctx context.Context) (credcache.Credentials, error)
}

// invalidator is implemented by credential sources that can drop what they
// cached.
type invalidator interface {
	Invalidate()
}

// ObjectStore writes staged objects, each request signed with the given
// credentials.
type ObjectStore interface {
	Put(ctx context.Context, creds aws.Credentials, bucket, key string, body []byte, progress storage.Progress) error
	CreateMultipart(ctx context.Context, creds aws.Credentials, bucket, key string) (string, error)
	UploadPart(ctx context.Context, creds aws.Credentials, bucket, key, uploadID string, partNumber int32, body []byte, progress storage.Progress) (string, error)
}

// Backend confirms staged writes and completes multipart transfers.
type Backend interface {
	Poll(ctx context.Context, reqs []backend.PollRequest) (map[string]backend.PollEntry, error)
	CompleteMultipart(ctx context.Context, req backend.CompleteRequest) (backend.CompleteResult, error)
}

// TrustVerifier checks a recipient's public key.
type TrustVerifier interface {
	Verify(ctx context.Context, r trust.Recipient) trust.Result
}

// Deps are the collaborators of an Orchestrator. Log and Metrics may be nil.
type Deps struct {
	Suite       cryptox.Suite
	Credentials CredentialSource
	Store       ObjectStore
	Backend     Backend
	Verifier    TrustVerifier
	Log         logging.Logger
	Metrics     *observability.Metrics
}

// Options tune an Orchestrator. Zero values of the hook fields select the
// production behaviour.
type Options struct {
	AppID            string
	StagingBucket    string
	NetworkProfile   string
	FileKeyLength    int
	BurnAfter        time.Duration
	RetryCountdown   time.Duration
	GiveUpAttempts   int
	TouchModulus     int
	MultipartCutover int64

	// TickInterval is the real time between countdown ticks; each tick takes
	// one second off the countdown.
	TickInterval time.Duration
	// Backoff is the poll wait schedule.
	Backoff func(attempt int) time.Duration
	Now     func() time.Time
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AppID:            cfg.AppID,
		StagingBucket:    cfg.StagingBucket,
		NetworkProfile:   cfg.NetworkProfile,
		FileKeyLength:    cfg.FileKeyLength,
		BurnAfter:        cfg.BurnAfter,
		RetryCountdown:   cfg.RetryCountdown,
		GiveUpAttempts:   cfg.GiveUpAttempts,
		TouchModulus:     cfg.TouchModulus,
		MultipartCutover: cfg.MultipartCutover,
	}
}

func (o *Options) setDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.Backoff == nil {
		o.Backoff = Backoff
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NetworkProfile == "" {
		o.NetworkProfile = config.ProfileDesktop
	}
	if o.FileKeyLength == 0 {
		o.FileKeyLength = cryptox.KeyLen512
	}
	if o.RetryCountdown <= 0 {
		o.RetryCountdown = 90 * time.Second
	}
	if o.GiveUpAttempts <= 0 {
		o.GiveUpAttempts = 50
	}
	if o.TouchModulus <= 0 {
		o.TouchModulus = 17
	}
	if o.MultipartCutover <= 0 {
		o.MultipartCutover = 10 * 1024 * 1024
	}
}
