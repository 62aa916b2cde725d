package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/sethvargo/go-retry"
)

// CompleteRequest finishes a multipart transfer. Parts holds the ETag of
// every part in part order.
type CompleteRequest struct {
	Bucket      string   `json:"bucket"`
	StagingPath string   `json:"staging_path"`
	UploadID    string   `json:"upload_id"`
	Parts       []string `json:"parts"`
}

type CompleteResult struct {
	StatusCode int  `json:"status_code"`
	Duplicate  bool `json:"duplicate"`
}

// CompleteMultipart submits the part list to the idempotent completion
// endpoint. Retryable failures are retried a few times in place; replaying a
// completion that already happened yields Duplicate rather than an error.
func (c *Client) CompleteMultipart(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	var res CompleteResult

	err := retry.Do(ctx, c.completeBackoff(), func(ctx context.Context) error {
		res = CompleteResult{}
		if err := c.net.PostJSON(ctx, c.completeURL, nil, req, &res); err != nil {
			if common.IsRetryable(err) {
				c.log.Warn(ctx, "multipart complete failed, retrying", "upload_id", req.UploadID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		if res.StatusCode != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("%w: multipart complete status %d", common.ErrServerRejected, res.StatusCode))
		}
		return nil
	})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("complete multipart %s: %w", req.UploadID, err)
	}

	c.log.Info(ctx, "multipart upload completed", "upload_id", req.UploadID, "parts", len(req.Parts), "duplicate", res.Duplicate)
	return res, nil
}
