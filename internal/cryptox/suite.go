// Package cryptox builds the encrypted payloads of a send: the tweakable
// block-cipher file envelope, the checksummed record cipher used for small
// JSON records, and public-key wrapping of symmetric keys.
//
// All primitive work goes through the Suite interface so the orchestrator can
// be handed a different implementation (a hardware-backed one, or a fake in
// tests) without touching the envelope layout code.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/xts"
)

// BlockSize is the unit of tweakable encryption. Every BlockSize bytes of an
// envelope get their own tweak (blockIndex, 0).
const BlockSize = 1024

// Supported symmetric key lengths for file envelopes.
const (
	KeyLen256  = 32
	KeyLen512  = 64
	KeyLen1024 = 128
)

// Suite is the function-call boundary to the cryptographic primitives.
type Suite interface {
	// EncryptBlocks encrypts src into dst block by block, starting with tweak
	// (firstBlock, 0) and incrementing once per BlockSize bytes. len(src)
	// must be a multiple of 16.
	EncryptBlocks(key []byte, firstBlock uint64, dst, src []byte) error
	DecryptBlocks(key []byte, firstBlock uint64, dst, src []byte) error

	// RecordEncrypt and RecordDecrypt protect small payloads with a block
	// mode, PKCS#7 padding and a 4-byte checksum prefix.
	RecordEncrypt(key, plaintext []byte) ([]byte, error)
	RecordDecrypt(key, ciphertext []byte) ([]byte, error)

	// WrapKey seals key for the holder of publicKey.
	WrapKey(publicKey, key []byte) ([]byte, error)

	Checksum64(b []byte) uint64
	RandomBytes(n int) ([]byte, error)
}

// NativeSuite implements Suite with XTS-AES for envelopes, AES-CBC for
// records and NaCl anonymous boxes for key wrapping.
type NativeSuite struct{}

func NewSuite() *NativeSuite {
	return &NativeSuite{}
}

// blake2Cipher compresses an oversized key half to an AES-256 key.
func blake2Cipher(key []byte) (cipher.Block, error) {
	sum := blake2b.Sum256(key)
	return aes.NewCipher(sum[:])
}

// tweakCipher selects the tweakable variant by key length.
func tweakCipher(key []byte) (*xts.Cipher, error) {
	switch len(key) {
	case KeyLen256, KeyLen512:
		return xts.NewCipher(aes.NewCipher, key)
	case KeyLen1024:
		return xts.NewCipher(blake2Cipher, key)
	default:
		return nil, fmt.Errorf("%w: %d bytes", common.ErrBadKeyLength, len(key))
	}
}

func (s *NativeSuite) EncryptBlocks(key []byte, firstBlock uint64, dst, src []byte) error {
	return runBlocks(key, firstBlock, dst, src, true)
}

func (s *NativeSuite) DecryptBlocks(key []byte, firstBlock uint64, dst, src []byte) error {
	return runBlocks(key, firstBlock, dst, src, false)
}

func runBlocks(key []byte, firstBlock uint64, dst, src []byte, encrypt bool) error {
	if len(dst) < len(src) {
		return fmt.Errorf("%w: output buffer too small", common.ErrLogicInvariant)
	}
	if len(src)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: %d bytes is not block aligned", common.ErrLogicInvariant, len(src))
	}

	c, err := tweakCipher(key)
	if err != nil {
		return err
	}

	block := firstBlock
	for off := 0; off < len(src); off += BlockSize {
		end := min(off+BlockSize, len(src))
		if encrypt {
			c.Encrypt(dst[off:end], src[off:end], block)
		} else {
			c.Decrypt(dst[off:end], src[off:end], block)
		}
		block++
	}
	return nil
}

func (s *NativeSuite) Checksum64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

func (s *NativeSuite) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("random source: %w", err)
	}
	return b, nil
}
