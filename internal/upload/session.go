package upload

import (
	"io"
	"maps"
	"slices"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/trust"
)

// Phase is the orchestrator state reported to callers.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseVerifyingTrust
	PhaseUploadingMetadataRecord
	PhaseUploadingFileData
	PhasePollingFiles
	PhaseUploadingMessageRecord
	PhasePollingMessage
	PhaseDone
	PhaseRetryPending
	PhaseFatalError
	PhaseTrustBlocked
)

var phaseNames = map[Phase]string{
	PhaseIdle:                    "idle",
	PhaseVerifyingTrust:          "verifying-trust",
	PhaseUploadingMetadataRecord: "uploading-metadata-record",
	PhaseUploadingFileData:       "uploading-file-data",
	PhasePollingFiles:            "polling-files",
	PhaseUploadingMessageRecord:  "uploading-message-record",
	PhasePollingMessage:          "polling-message",
	PhaseDone:                    "done",
	PhaseRetryPending:            "retry-pending",
	PhaseFatalError:              "fatal-error",
	PhaseTrustBlocked:            "trust-blocked",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether the phase ends a send until the caller acts.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFatalError || p == PhaseTrustBlocked
}

// SourceFile is one file to send. Data must stay readable for the whole send.
type SourceFile struct {
	Name      string
	MIME      string
	Size      int64
	Data      io.ReaderAt
	Thumbnail []byte
}

// Request is what the caller asks to send.
type Request struct {
	Recipient trust.Recipient
	Files     []SourceFile
	Message   string
}

// Ack is the backend's confirmation of a staged write.
type Ack struct {
	ETag     string
	FileID   string
	ChangeID string
}

// MultipartState tracks one file's multipart transfer. Key and UploadID are
// empty until the transfer has been created and then never change.
//
// A part is available when it has neither a Progress entry nor a token, in
// flight when it has a Progress entry but no token, and done once it has a
// token.
type MultipartState struct {
	PartSize    int64
	NumParts    int
	Key         string
	UploadID    string
	Concurrency int
	Progress    map[int]float64
	Tokens      map[int]string
}

// FileTransfer is the per-file upload state. The metadata record and the
// file data are independent staged writes, each confirmed on its own.
type FileTransfer struct {
	Key        []byte
	RandomName string

	RecordRequestID string
	DataRequestID   string

	// Identity each write was staged under; polls and touches must use it.
	RecordIdentity string
	DataIdentity   string

	RecordUploaded  bool
	DataUploaded    bool
	UnipartProgress float64
	Multipart       *MultipartState

	RecordAck   *Ack
	DataAck     *Ack
	CloudFileID string
}

// Confirmed reports whether both writes of the file have been acknowledged.
func (f *FileTransfer) Confirmed() bool {
	return f.RecordAck != nil && f.DataAck != nil
}

type MessageTransfer struct {
	Key        []byte
	RandomName string
	RequestID  string
	Identity   string
	Uploaded   bool
	Ack        *Ack
}

// Session is one send. The orchestrator never mutates a published Session;
// every change is made on a Clone and swapped in. The one exception is the
// final snapshot of a finished send, whose keys are wiped.
type Session struct {
	Generation uint64
	Request    *Request

	BurnDate   time.Time
	PollCount  int
	TouchCount int

	Trust        *trust.Result
	RecipientKey []byte

	Files   []FileTransfer
	Message *MessageTransfer
}

// Clone returns a deep copy. Request and Trust are immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.RecipientKey = slices.Clone(s.RecipientKey)
	c.Files = make([]FileTransfer, len(s.Files))
	for i := range s.Files {
		c.Files[i] = s.Files[i].clone()
	}
	if s.Message != nil {
		m := *s.Message
		m.Key = slices.Clone(s.Message.Key)
		m.Ack = cloneAck(s.Message.Ack)
		c.Message = &m
	}
	return &c
}

func (f FileTransfer) clone() FileTransfer {
	c := f
	c.Key = slices.Clone(f.Key)
	c.RecordAck = cloneAck(f.RecordAck)
	c.DataAck = cloneAck(f.DataAck)
	if f.Multipart != nil {
		m := *f.Multipart
		m.Progress = maps.Clone(f.Multipart.Progress)
		m.Tokens = maps.Clone(f.Multipart.Tokens)
		c.Multipart = &m
	}
	return c
}

func cloneAck(a *Ack) *Ack {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// FilesConfirmed reports whether every file has both writes acknowledged.
func (s *Session) FilesConfirmed() bool {
	for i := range s.Files {
		if !s.Files[i].Confirmed() {
			return false
		}
	}
	return true
}

// Progress is the overall upload fraction across files, for display.
func (s *Session) Progress() float64 {
	if s == nil || len(s.Files) == 0 {
		return 0
	}
	var total float64
	for i := range s.Files {
		f := &s.Files[i]
		switch {
		case f.DataUploaded:
			total++
		case f.Multipart != nil:
			total += f.Multipart.fraction()
		default:
			total += f.UnipartProgress
		}
	}
	return total / float64(len(s.Files))
}
