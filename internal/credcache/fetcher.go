package credcache

import (
	"context"
	"fmt"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/netx"
	"github.com/aws/aws-sdk-go-v2/aws"
)

// Credentials are temporary storage credentials plus the anonymous identity
// they were issued to.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expires         time.Time
	AnonymousID     string
}

// AWS returns the signing half of c.
func (c Credentials) AWS() aws.Credentials {
	return aws.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Source:          "storm4-anonymous",
		CanExpire:       true,
		Expires:         c.Expires,
	}
}

// Fetcher obtains a fresh set of credentials.
type Fetcher interface {
	Fetch(ctx context.Context) (Credentials, error)
}

type credentialsRequest struct {
	AppID   string `json:"app_id"`
	Version string `json:"version"`
}

type credentialsReply struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      int64  `json:"Expiration"`
	IDToken         string `json:"id_token"`
}

// HTTPFetcher requests anonymous credentials from the issuance endpoint.
type HTTPFetcher struct {
	client *netx.Client
	url    string
	appID  string
}

func NewHTTPFetcher(client *netx.Client, url, appID string) *HTTPFetcher {
	return &HTTPFetcher{client: client, url: url, appID: appID}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (Credentials, error) {
	var reply credentialsReply
	req := credentialsRequest{AppID: f.appID, Version: common.AppVersion}
	if err := f.client.PostJSON(ctx, f.url, nil, req, &reply); err != nil {
		return Credentials{}, fmt.Errorf("fetch credentials: %w", err)
	}
	if reply.AccessKeyID == "" || reply.SecretAccessKey == "" {
		return Credentials{}, fmt.Errorf("%w: credentials reply is missing keys", common.ErrServerRejected)
	}

	claims, err := ParseIdentityToken(reply.IDToken)
	if err != nil {
		return Credentials{}, err
	}

	expires := time.UnixMilli(reply.Expiration)
	if reply.Expiration == 0 {
		expires = claims.expiry()
	}

	return Credentials{
		AccessKeyID:     reply.AccessKeyID,
		SecretAccessKey: reply.SecretAccessKey,
		SessionToken:    reply.SessionToken,
		Expires:         expires,
		AnonymousID:     claims.Subject,
	}, nil
}
