package upload

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cryptox"
)

// RecordVersion is the record format written by this client.
const RecordVersion = 3

// PermsRecipient are the rights granted to the recipient on every record.
const PermsRecipient = "rws"

// KeyGrant is one entry of a record's key map. The anonymous read grant is
// an empty entry.
type KeyGrant struct {
	Perms string `json:"perms,omitempty"`
	Key   string `json:"key,omitempty"`
}

// Record is the JSON document staged as a .rcrd object. Metadata and Data
// carry record-encrypted payloads, base64 encoded.
type Record struct {
	Version     int                 `json:"version"`
	Keys        map[string]KeyGrant `json:"keys"`
	BurnDate    int64               `json:"burnDate"`
	Metadata    string              `json:"metadata,omitempty"`
	Data        string              `json:"data,omitempty"`
	Attachments [][3]string         `json:"attachments,omitempty"`
}

// Descriptor is the encrypted description of a sent file.
type Descriptor struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MIME      string `json:"mime,omitempty"`
	Thumbnail bool   `json:"thumbnail,omitempty"`
}

// Attachment references a committed file from the message record.
type Attachment struct {
	CloudPath   string
	CloudFileID string
	Filename    string
}

// GrantID is the key map entry of a user.
func GrantID(userID string) string {
	return "UID:" + userID
}

// recordKey is the key used for a record's encrypted payload. The record
// cipher takes at most a 512-bit key, so longer file keys are truncated.
func recordKey(key []byte) []byte {
	return key[:min(len(key), cryptox.KeyLen512)]
}

func newRecord(s cryptox.Suite, recipientID string, recipientKey, key []byte, burnDate time.Time) (*Record, error) {
	wrapped, err := s.WrapKey(recipientKey, key)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap key: %v", common.ErrLogicInvariant, err)
	}
	return &Record{
		Version: RecordVersion,
		Keys: map[string]KeyGrant{
			GrantID(recipientID):    {Perms: PermsRecipient, Key: base64.StdEncoding.EncodeToString(wrapped)},
			common.AnonymousGrantID: {},
		},
		BurnDate: burnDate.UnixMilli(),
	}, nil
}

func buildMetadataRecord(s cryptox.Suite, recipientID string, recipientKey, fileKey []byte, desc Descriptor, burnDate time.Time) ([]byte, error) {
	rec, err := newRecord(s, recipientID, recipientKey, fileKey, burnDate)
	if err != nil {
		return nil, err
	}
	meta, err := cryptox.EncryptEntry(s, desc, recordKey(fileKey))
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt descriptor: %v", common.ErrLogicInvariant, err)
	}
	rec.Metadata = base64.StdEncoding.EncodeToString(meta)
	return marshalRecord(rec)
}

func buildMessageRecord(s cryptox.Suite, recipientID string, recipientKey, msgKey []byte, text string, attachments []Attachment, burnDate time.Time) ([]byte, error) {
	rec, err := newRecord(s, recipientID, recipientKey, msgKey, burnDate)
	if err != nil {
		return nil, err
	}
	if text != "" {
		body, err := s.RecordEncrypt(recordKey(msgKey), []byte(text))
		if err != nil {
			return nil, fmt.Errorf("%w: encrypt message: %v", common.ErrLogicInvariant, err)
		}
		rec.Data = base64.StdEncoding.EncodeToString(body)
	}
	for _, a := range attachments {
		rec.Attachments = append(rec.Attachments, [3]string{a.CloudPath, a.CloudFileID, a.Filename})
	}
	return marshalRecord(rec)
}

func marshalRecord(rec *Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal record: %v", common.ErrLogicInvariant, err)
	}
	return b, nil
}
