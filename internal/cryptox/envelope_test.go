package cryptox

import (
	"bytes"
	"testing"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T, n int) []byte {
	t.Helper()
	k, err := NewSuite().RandomBytes(n)
	require.NoError(t, err)
	return k
}

func TestPadLength(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		keyLen int
		want   int
	}{
		{"aligned gets full pad", 64, 32, 32},
		{"one short", 63, 32, 1},
		{"one over", 65, 64, 63},
		{"large key", 64, 128, 64},
		{"aligned large key", 256, 128, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadLength(tt.total, tt.keyLen)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, (tt.total+int64(got))%int64(tt.keyLen))
		})
	}
}

func TestHeader_MarshalParse(t *testing.T) {
	h := Header{MetadataLen: 1, ThumbnailLen: 2, DataLen: 3, ThumbnailChecksum: 4, Version: EnvelopeVersion}
	b := h.Marshal()
	require.Len(t, b, HeaderSize)
	assert.Equal(t, make([]byte, 23), b[41:], "reserved bytes are zero")

	got, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	b[0] ^= 0xff
	_, err = ParseHeader(b)
	assert.ErrorIs(t, err, common.ErrCorruptOrWrongKey)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	s := NewSuite()
	for _, keyLen := range []int{KeyLen256, KeyLen512, KeyLen1024} {
		for _, size := range []int{0, 1, 31, 1024, 5000} {
			data := bytes.Repeat([]byte{0xA5}, size)
			thumb := []byte("thumbnail")
			key := randomKey(t, keyLen)

			env, err := NewEnvelope(s, bytes.NewReader(data), int64(size), thumb, keyLen)
			require.NoError(t, err)
			assert.Zero(t, env.Size()%int64(keyLen))
			assert.Greater(t, env.Size(), int64(HeaderSize+len(thumb)+size))

			ct, err := env.Encrypt(s, key)
			require.NoError(t, err)
			require.Len(t, ct, int(env.Size()))

			opened, err := OpenEnvelope(s, key, ct)
			require.NoError(t, err)
			assert.Equal(t, thumb, opened.Thumbnail)
			assert.Equal(t, data, opened.Data)
			assert.Equal(t, uint64(size), opened.Header.DataLen)
		}
	}
}

func TestEnvelope_WrongKey(t *testing.T) {
	s := NewSuite()
	data := []byte("some file contents")
	env, err := NewEnvelope(s, bytes.NewReader(data), int64(len(data)), nil, KeyLen512)
	require.NoError(t, err)

	ct, err := env.Encrypt(s, randomKey(t, KeyLen512))
	require.NoError(t, err)

	_, err = OpenEnvelope(s, randomKey(t, KeyLen512), ct)
	assert.ErrorIs(t, err, common.ErrCorruptOrWrongKey)
}

func TestEnvelope_RangesMatchSinglePass(t *testing.T) {
	s := NewSuite()
	key := randomKey(t, KeyLen512)

	data := make([]byte, 10*BlockSize+300)
	for i := range data {
		data[i] = byte(i * 7)
	}
	env, err := NewEnvelope(s, bytes.NewReader(data), int64(len(data)), []byte("thumb"), KeyLen512)
	require.NoError(t, err)

	whole, err := env.Encrypt(s, key)
	require.NoError(t, err)

	var joined []byte
	const part = 3 * BlockSize
	for off := int64(0); off < env.Size(); off += part {
		n := min(part, env.Size()-off)
		chunk, err := env.EncryptRange(s, key, off, n)
		require.NoError(t, err)
		joined = append(joined, chunk...)
	}
	assert.Equal(t, whole, joined)
}

func TestEnvelope_Errors(t *testing.T) {
	s := NewSuite()
	_, err := NewEnvelope(s, bytes.NewReader(nil), 0, nil, 48)
	assert.ErrorIs(t, err, common.ErrBadKeyLength)

	env, err := NewEnvelope(s, bytes.NewReader(nil), 0, nil, KeyLen256)
	require.NoError(t, err)
	_, err = env.EncryptRange(s, randomKey(t, KeyLen256), 16, 16)
	assert.ErrorIs(t, err, common.ErrLogicInvariant)
	_, err = env.EncryptRange(s, randomKey(t, KeyLen256), 0, env.Size()+1)
	assert.ErrorIs(t, err, common.ErrLogicInvariant)
	_, err = env.Encrypt(s, randomKey(t, 16))
	assert.ErrorIs(t, err, common.ErrBadKeyLength)
}

func TestEnvelope_ShortSource(t *testing.T) {
	s := NewSuite()
	env, err := NewEnvelope(s, bytes.NewReader([]byte("abc")), 10, nil, KeyLen256)
	require.NoError(t, err)
	_, err = env.Encrypt(s, randomKey(t, KeyLen256))
	assert.ErrorIs(t, err, common.ErrLogicInvariant)
}
