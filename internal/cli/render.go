package cli

import (
	"fmt"
	"strings"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/upload"
)

const barWidth = 30

// renderStatus formats st as a single status line.
func renderStatus(st upload.Status) string {
	switch st.Phase {
	case upload.PhaseRetryPending:
		return fmt.Sprintf("retrying in %ds: %v", st.SecondsRemaining, st.Err)
	case upload.PhaseFatalError:
		return fmt.Sprintf("send failed: %v", st.Err)
	case upload.PhaseTrustBlocked:
		return fmt.Sprintf("send blocked: recipient key failed verification (computed root %s)", st.ComputedRoot)
	case upload.PhaseDone:
		if st.Unverified {
			return "sent (recipient key is not yet anchored in the ledger)"
		}
		return "sent"
	case upload.PhaseUploadingFileData, upload.PhasePollingFiles, upload.PhaseUploadingMetadataRecord:
		return fmt.Sprintf("%-26s %s", st.Phase, progressBar(st.Progress))
	default:
		return st.Phase.String()
	}
}

func progressBar(fraction float64) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * barWidth)
	return fmt.Sprintf("[%s%s] %3.0f%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), fraction*100)
}

// exitCode maps a final status onto the process exit code.
func exitCode(st upload.Status) int {
	switch st.Phase {
	case upload.PhaseDone:
		return 0
	case upload.PhaseTrustBlocked:
		return 3
	default:
		return 1
	}
}
