package cryptox

import (
	"testing"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RoundTrip(t *testing.T) {
	s := NewSuite()
	for _, keyLen := range []int{KeyLen256, KeyLen512} {
		key := randomKey(t, keyLen)
		for _, msg := range [][]byte{{}, []byte("x"), []byte("exactly sixteen!"), make([]byte, 1000)} {
			ct, err := s.RecordEncrypt(key, msg)
			require.NoError(t, err)
			assert.Zero(t, (len(ct)-checksumSize)%16)

			pt, err := s.RecordDecrypt(key, ct)
			require.NoError(t, err)
			assert.Equal(t, len(msg), len(pt))
			assert.Equal(t, string(msg), string(pt))
		}
	}
}

func TestRecord_WrongKeyOrCorrupt(t *testing.T) {
	s := NewSuite()
	key := randomKey(t, KeyLen256)
	ct, err := s.RecordEncrypt(key, []byte(`{"filename":"a.txt"}`))
	require.NoError(t, err)

	_, err = s.RecordDecrypt(randomKey(t, KeyLen256), ct)
	assert.ErrorIs(t, err, common.ErrCorruptOrWrongKey)

	flipped := append([]byte(nil), ct...)
	flipped[1] ^= 0x01
	_, err = s.RecordDecrypt(key, flipped)
	assert.ErrorIs(t, err, common.ErrCorruptOrWrongKey)

	_, err = s.RecordDecrypt(key, ct[:10])
	assert.ErrorIs(t, err, common.ErrCorruptOrWrongKey)
}

func TestRecord_BadKeyLength(t *testing.T) {
	_, err := NewSuite().RecordEncrypt(make([]byte, 128), []byte("x"))
	assert.ErrorIs(t, err, common.ErrBadKeyLength)
}

func TestEncryptDecryptEntry(t *testing.T) {
	type descriptor struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	}
	s := NewSuite()
	key := randomKey(t, KeyLen512)

	ct, err := EncryptEntry(s, descriptor{Filename: "report.pdf", Size: 42}, key)
	require.NoError(t, err)

	var got descriptor
	require.NoError(t, DecryptEntry(s, ct, key, &got))
	assert.Equal(t, descriptor{Filename: "report.pdf", Size: 42}, got)
}

func TestWrapKey(t *testing.T) {
	s := NewSuite()
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	key := randomKey(t, KeyLen512)
	wrapped, err := s.WrapKey(pub[:], key)
	require.NoError(t, err)

	got, err := UnwrapKey(pub, priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	otherPub, otherPriv, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = UnwrapKey(otherPub, otherPriv, wrapped)
	assert.ErrorIs(t, err, common.ErrCorruptOrWrongKey)

	_, err = s.WrapKey(make([]byte, 16), key)
	assert.ErrorIs(t, err, common.ErrBadKeyLength)
}
