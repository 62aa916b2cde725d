package upload

import (
	"fmt"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/backend"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/staging"
)

// Backoff is the wait before poll attempt number attempt. It depends only on
// the cumulative attempt count.
func Backoff(attempt int) time.Duration {
	switch {
	case attempt <= 0:
		return 0
	case attempt <= 2:
		return 1 * time.Second
	case attempt <= 4:
		return 2 * time.Second
	case attempt <= 14:
		// 5-6 wait 4s, then 2s more for every further pair of attempts.
		return time.Duration(4+2*((attempt-5)/2)) * time.Second
	default:
		return 14 * time.Second
	}
}

// TouchDue reports whether a touch is owed: one per full modulus of poll
// attempts, never at zero.
func TouchDue(pollCount, touchCount, modulus int) bool {
	if pollCount == 0 || modulus <= 0 || pollCount%modulus != 0 {
		return false
	}
	return touchCount < pollCount/modulus
}

// pendingWrite is a staged write still waiting for its acknowledgement. file
// is -1 for the message record.
type pendingWrite struct {
	file     int
	target   staging.Target
	identity string
}

func (p pendingWrite) request() backend.PollRequest {
	return backend.PollRequest{AnonymousID: p.identity, RequestID: p.target.RequestID}
}

func fileRecordTarget(f *FileTransfer) staging.Target {
	return staging.Target{Category: staging.CategoryFiles, Name: f.RandomName, Ext: staging.ExtRecord, RequestID: f.RecordRequestID}
}

func fileDataTarget(f *FileTransfer) staging.Target {
	return staging.Target{Category: staging.CategoryFiles, Name: f.RandomName, Ext: staging.ExtData, RequestID: f.DataRequestID}
}

func messageTarget(m *MessageTransfer) staging.Target {
	return staging.Target{Category: staging.CategoryMessages, Name: m.RandomName, Ext: staging.ExtRecord, RequestID: m.RequestID}
}

// pendingFileWrites lists the unconfirmed file writes in upload order.
func pendingFileWrites(s *Session) []pendingWrite {
	var out []pendingWrite
	for i := range s.Files {
		f := &s.Files[i]
		if f.RecordAck == nil {
			out = append(out, pendingWrite{file: i, target: fileRecordTarget(f), identity: f.RecordIdentity})
		}
		if f.DataAck == nil {
			out = append(out, pendingWrite{file: i, target: fileDataTarget(f), identity: f.DataIdentity})
		}
	}
	return out
}

func pendingMessageWrites(s *Session) []pendingWrite {
	if s.Message == nil || s.Message.Ack != nil {
		return nil
	}
	return []pendingWrite{{file: -1, target: messageTarget(s.Message), identity: s.Message.Identity}}
}

// applyPoll records the replies for pending on s. It returns how many writes
// were newly confirmed. A write the backend refused has its uploaded flag
// cleared so it is staged again under a new request id, and the refusal is
// returned.
func applyPoll(s *Session, pending []pendingWrite, replies map[string]backend.PollEntry) (int, error) {
	confirmed := 0
	var rejected error

	for _, p := range pending {
		entry, ok := replies[p.target.RequestID]
		if !ok || entry.Pending() {
			continue
		}

		if !entry.Confirmed() {
			clearUploaded(s, p)
			if rejected == nil {
				rejected = fmt.Errorf("%w: staged %s.%s status %d", common.ErrServerRejected, p.target.Name, p.target.Ext, entry.Status)
			}
			continue
		}

		ack := &Ack{ETag: entry.Info.ETag, FileID: entry.Info.FileID, ChangeID: entry.ChangeID}
		switch {
		case p.file < 0:
			s.Message.Ack = ack
		case p.target.Ext == staging.ExtRecord:
			s.Files[p.file].RecordAck = ack
		default:
			s.Files[p.file].DataAck = ack
			s.Files[p.file].CloudFileID = ack.FileID
		}
		confirmed++
	}

	if confirmed > 0 {
		s.PollCount = 0
		s.TouchCount = 0
	}
	return confirmed, rejected
}

func clearUploaded(s *Session, p pendingWrite) {
	switch {
	case p.file < 0:
		s.Message.Uploaded = false
		s.Message.RequestID = staging.NewRequestID()
	case p.target.Ext == staging.ExtRecord:
		s.Files[p.file].RecordUploaded = false
		s.Files[p.file].RecordRequestID = staging.NewRequestID()
	default:
		f := &s.Files[p.file]
		f.DataUploaded = false
		f.DataRequestID = staging.NewRequestID()
		f.UnipartProgress = 0
		f.Multipart = nil
	}
}
