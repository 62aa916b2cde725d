package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

const checksumSize = 4

// recordCipher derives the CBC key and IV from a 32 or 64 byte record key.
func recordCipher(key []byte) (cipher.Block, []byte, error) {
	switch len(key) {
	case KeyLen256:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, nil, err
		}
		iv := blake2b.Sum256(key)
		return block, iv[:aes.BlockSize], nil
	case KeyLen512:
		block, err := aes.NewCipher(key[:32])
		if err != nil {
			return nil, nil, err
		}
		return block, key[32 : 32+aes.BlockSize], nil
	default:
		return nil, nil, fmt.Errorf("%w: record key of %d bytes", common.ErrBadKeyLength, len(key))
	}
}

// recordChecksum is the low 32 bits of xxhash64(cleartext) XOR the first four
// key bytes read big-endian. It is a corruption/wrong-key detector, not a MAC;
// the construction is fixed for compatibility with existing records.
func recordChecksum(key, cleartext []byte) uint32 {
	return uint32(xxhash.Sum64(cleartext)) ^ binary.BigEndian.Uint32(key[:4])
}

func (s *NativeSuite) RecordEncrypt(key, plaintext []byte) ([]byte, error) {
	block, iv, err := recordCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, checksumSize+len(padded))
	binary.BigEndian.PutUint32(out, recordChecksum(key, plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[checksumSize:], padded)
	return out, nil
}

func (s *NativeSuite) RecordDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, iv, err := recordCipher(key)
	if err != nil {
		return nil, err
	}

	body := ciphertext[min(checksumSize, len(ciphertext)):]
	if len(ciphertext) < checksumSize+aes.BlockSize || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: record of %d bytes", common.ErrCorruptOrWrongKey, len(ciphertext))
	}

	padded := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, body)

	plain, ok := pkcs7Unpad(padded, aes.BlockSize)
	if !ok {
		return nil, common.ErrCorruptOrWrongKey
	}
	if binary.BigEndian.Uint32(ciphertext) != recordChecksum(key, plain) {
		return nil, common.ErrCorruptOrWrongKey
	}
	return plain, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}

// EncryptEntry serializes entry to JSON and protects it with the record cipher.
func EncryptEntry(s Suite, entry any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal record: %v", common.ErrLogicInvariant, err)
	}
	return s.RecordEncrypt(key, plaintext)
}

// DecryptEntry reverses EncryptEntry into v.
func DecryptEntry(s Suite, ciphertext, key []byte, v any) error {
	plaintext, err := s.RecordDecrypt(key, ciphertext)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
