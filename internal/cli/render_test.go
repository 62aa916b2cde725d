package cli

import (
	"errors"
	"testing"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/upload"
	"github.com/stretchr/testify/assert"
)

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		name string
		st   upload.Status
		want string
	}{
		{name: "verifying", st: upload.Status{Phase: upload.PhaseVerifyingTrust}, want: "verifying-trust"},
		{
			name: "uploading",
			st:   upload.Status{Phase: upload.PhaseUploadingFileData, Progress: 0.5},
			want: "uploading-file-data        [###############...............]  50%",
		},
		{
			name: "retry",
			st:   upload.Status{Phase: upload.PhaseRetryPending, SecondsRemaining: 42, Err: errors.New("connection reset")},
			want: "retrying in 42s: connection reset",
		},
		{name: "done", st: upload.Status{Phase: upload.PhaseDone}, want: "sent"},
		{
			name: "done unverified",
			st:   upload.Status{Phase: upload.PhaseDone, Unverified: true},
			want: "sent (recipient key is not yet anchored in the ledger)",
		},
		{
			name: "blocked",
			st:   upload.Status{Phase: upload.PhaseTrustBlocked, ComputedRoot: "abcd"},
			want: "send blocked: recipient key failed verification (computed root abcd)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderStatus(tt.st))
		})
	}
}

func TestProgressBar_Clamps(t *testing.T) {
	assert.Equal(t, "[..............................]   0%", progressBar(-1))
	assert.Equal(t, "[##############################] 100%", progressBar(2))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(upload.Status{Phase: upload.PhaseDone}))
	assert.Equal(t, 1, exitCode(upload.Status{Phase: upload.PhaseFatalError}))
	assert.Equal(t, 3, exitCode(upload.Status{Phase: upload.PhaseTrustBlocked}))
}
