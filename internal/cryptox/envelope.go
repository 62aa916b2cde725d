package cryptox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
)

// Envelope layout constants.
const (
	HeaderSize      = 64
	EnvelopeVersion = 3

	envelopeMagic uint64 = 0x5334434C4F554446
)

// Header is the fixed 64-byte prefix of every envelope. Fields are written
// big-endian in declaration order, followed by the version byte and reserved
// zero bytes.
type Header struct {
	MetadataLen       uint64
	ThumbnailLen      uint64
	DataLen           uint64
	ThumbnailChecksum uint64
	Version           uint8
}

func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(b[0:], envelopeMagic)
	binary.BigEndian.PutUint64(b[8:], h.MetadataLen)
	binary.BigEndian.PutUint64(b[16:], h.ThumbnailLen)
	binary.BigEndian.PutUint64(b[24:], h.DataLen)
	binary.BigEndian.PutUint64(b[32:], h.ThumbnailChecksum)
	b[40] = h.Version
	return b
}

// ParseHeader decodes a cleartext envelope header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize || binary.BigEndian.Uint64(b) != envelopeMagic {
		return Header{}, common.ErrCorruptOrWrongKey
	}
	return Header{
		MetadataLen:       binary.BigEndian.Uint64(b[8:]),
		ThumbnailLen:      binary.BigEndian.Uint64(b[16:]),
		DataLen:           binary.BigEndian.Uint64(b[24:]),
		ThumbnailChecksum: binary.BigEndian.Uint64(b[32:]),
		Version:           b[40],
	}, nil
}

// PadLength returns the trailing padding for an envelope body of total bytes.
// Padding is never empty: an already aligned body gets a full keyLen of pad.
func PadLength(total int64, keyLen int) int {
	padLen := keyLen - int(total%int64(keyLen))
	if padLen == 0 {
		padLen = keyLen
	}
	return padLen
}

// Envelope is the cleartext view of header, thumbnail, data and padding. It
// never materialises the data section; ranges are read from the source on
// demand so multipart parts can be built independently.
type Envelope struct {
	header    []byte
	thumbnail []byte
	data      io.ReaderAt
	dataLen   int64
	padding   []byte
}

// NewEnvelope lays out an envelope for dataLen bytes readable from data, an
// optional thumbnail and a key of keyLen bytes.
func NewEnvelope(s Suite, data io.ReaderAt, dataLen int64, thumbnail []byte, keyLen int) (*Envelope, error) {
	switch keyLen {
	case KeyLen256, KeyLen512, KeyLen1024:
	default:
		return nil, fmt.Errorf("%w: %d bytes", common.ErrBadKeyLength, keyLen)
	}
	if dataLen < 0 {
		return nil, fmt.Errorf("%w: negative data length", common.ErrLogicInvariant)
	}

	h := Header{
		ThumbnailLen: uint64(len(thumbnail)),
		DataLen:      uint64(dataLen),
		Version:      EnvelopeVersion,
	}
	if len(thumbnail) > 0 {
		h.ThumbnailChecksum = s.Checksum64(thumbnail)
	}

	body := int64(HeaderSize+len(thumbnail)) + dataLen
	padLen := PadLength(body, keyLen)

	return &Envelope{
		header:    h.Marshal(),
		thumbnail: thumbnail,
		data:      data,
		dataLen:   dataLen,
		padding:   bytes.Repeat([]byte{byte(padLen)}, padLen),
	}, nil
}

// Size is the full envelope length, always a multiple of the key length.
func (e *Envelope) Size() int64 {
	return int64(len(e.header)+len(e.thumbnail)) + e.dataLen + int64(len(e.padding))
}

// ReadAt implements io.ReaderAt over the cleartext envelope.
func (e *Envelope) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", common.ErrLogicInvariant)
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		section, start, err := e.locate(pos)
		if err != nil {
			return n, err
		}
		var read int
		if section == nil {
			want := min(int64(len(p)-n), e.dataLen-start)
			read, err = e.data.ReadAt(p[n:n+int(want)], start)
			if read < int(want) {
				if err == nil || errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				return n + read, fmt.Errorf("%w: read file data: %v", common.ErrLogicInvariant, err)
			}
		} else {
			read = copy(p[n:], section[start:])
		}
		n += read
	}
	return n, nil
}

// locate maps an envelope offset to a fixed section and an offset inside it.
// A nil section means the data source.
func (e *Envelope) locate(pos int64) ([]byte, int64, error) {
	if pos < int64(len(e.header)) {
		return e.header, pos, nil
	}
	pos -= int64(len(e.header))
	if pos < int64(len(e.thumbnail)) {
		return e.thumbnail, pos, nil
	}
	pos -= int64(len(e.thumbnail))
	if pos < e.dataLen {
		return nil, pos, nil
	}
	pos -= e.dataLen
	if pos < int64(len(e.padding)) {
		return e.padding, pos, nil
	}
	return nil, 0, io.EOF
}

// EncryptRange returns the ciphertext of envelope bytes [off, off+n). off must
// fall on a BlockSize boundary; tweaks are derived from the absolute offset so
// independently encrypted ranges concatenate to the single-pass ciphertext.
func (e *Envelope) EncryptRange(s Suite, key []byte, off, n int64) ([]byte, error) {
	if off%BlockSize != 0 {
		return nil, fmt.Errorf("%w: range offset %d not on a block boundary", common.ErrLogicInvariant, off)
	}
	if off+n > e.Size() {
		return nil, fmt.Errorf("%w: range past end of envelope", common.ErrLogicInvariant)
	}

	buf := make([]byte, n)
	if _, err := e.ReadAt(buf, off); err != nil {
		return nil, err
	}
	if err := s.EncryptBlocks(key, uint64(off/BlockSize), buf, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Encrypt returns the ciphertext of the whole envelope.
func (e *Envelope) Encrypt(s Suite, key []byte) ([]byte, error) {
	return e.EncryptRange(s, key, 0, e.Size())
}

// Opened is a decrypted envelope.
type Opened struct {
	Header    Header
	Thumbnail []byte
	Data      []byte
}

// OpenEnvelope decrypts a complete envelope and validates its layout,
// padding and thumbnail checksum.
func OpenEnvelope(s Suite, key, ciphertext []byte) (*Opened, error) {
	if len(ciphertext) < HeaderSize || len(ciphertext)%len(key) != 0 {
		return nil, fmt.Errorf("%w: envelope of %d bytes", common.ErrCorruptOrWrongKey, len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	if err := s.DecryptBlocks(key, 0, plain, ciphertext); err != nil {
		return nil, err
	}

	h, err := ParseHeader(plain)
	if err != nil {
		return nil, err
	}

	body := uint64(HeaderSize) + h.ThumbnailLen + h.DataLen
	if body >= uint64(len(plain)) {
		return nil, common.ErrCorruptOrWrongKey
	}
	padLen := PadLength(int64(body), len(key))
	if body+uint64(padLen) != uint64(len(plain)) {
		return nil, common.ErrCorruptOrWrongKey
	}
	for _, v := range plain[body:] {
		if v != byte(padLen) {
			return nil, common.ErrCorruptOrWrongKey
		}
	}

	thumb := plain[HeaderSize : HeaderSize+h.ThumbnailLen]
	if len(thumb) > 0 && s.Checksum64(thumb) != h.ThumbnailChecksum {
		return nil, common.ErrCorruptOrWrongKey
	}

	return &Opened{
		Header:    h,
		Thumbnail: thumb,
		Data:      plain[HeaderSize+h.ThumbnailLen : body],
	}, nil
}
