package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase(t *testing.T) {
	assert.Equal(t, "polling-files", PhasePollingFiles.String())
	assert.Equal(t, "unknown", Phase(99).String())
	assert.True(t, PhaseTrustBlocked.Terminal())
	assert.False(t, PhaseRetryPending.Terminal())
}

func TestSessionClone(t *testing.T) {
	s := &Session{
		RecipientKey: []byte{1, 2, 3},
		Files: []FileTransfer{{
			Key:       []byte{9, 9},
			RecordAck: &Ack{FileID: "a"},
			Multipart: &MultipartState{NumParts: 2, Progress: map[int]float64{0: 0.5}, Tokens: map[int]string{}},
		}},
		Message: &MessageTransfer{Key: []byte{7}, Ack: &Ack{FileID: "m"}},
	}

	c := s.Clone()
	c.RecipientKey[0] = 0
	c.Files[0].Key[0] = 0
	c.Files[0].RecordAck.FileID = "changed"
	c.Files[0].Multipart.Tokens[0] = "t"
	c.Files[0].Multipart.Progress[1] = 0.1
	c.Message.Key[0] = 0
	c.Message.Ack.FileID = "changed"
	c.PollCount = 3

	assert.Equal(t, []byte{1, 2, 3}, s.RecipientKey)
	assert.Equal(t, []byte{9, 9}, s.Files[0].Key)
	assert.Equal(t, "a", s.Files[0].RecordAck.FileID)
	assert.Empty(t, s.Files[0].Multipart.Tokens)
	assert.Len(t, s.Files[0].Multipart.Progress, 1)
	assert.Equal(t, []byte{7}, s.Message.Key)
	assert.Equal(t, "m", s.Message.Ack.FileID)
	assert.Zero(t, s.PollCount)

	var nilSession *Session
	assert.Nil(t, nilSession.Clone())
}

func TestSessionProgress(t *testing.T) {
	s := &Session{Files: []FileTransfer{
		{DataUploaded: true},
		{Multipart: &MultipartState{NumParts: 2, Progress: map[int]float64{1: 0.5}, Tokens: map[int]string{0: "t"}}},
	}}
	assert.InDelta(t, 0.875, s.Progress(), 1e-9)

	s.Files[1] = FileTransfer{UnipartProgress: 0.25}
	assert.InDelta(t, 0.625, s.Progress(), 1e-9)
	require.Zero(t, (&Session{}).Progress())
}
