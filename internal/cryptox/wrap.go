package cryptox

import (
	"crypto/rand"
	"fmt"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"golang.org/x/crypto/nacl/box"
)

// PublicKeySize is the length of recipient key material (Curve25519).
const PublicKeySize = 32

func (s *NativeSuite) WrapKey(publicKey, key []byte) ([]byte, error) {
	if len(publicKey) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key of %d bytes", common.ErrBadKeyLength, len(publicKey))
	}
	var pub [PublicKeySize]byte
	copy(pub[:], publicKey)

	sealed, err := box.SealAnonymous(nil, key, &pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	return sealed, nil
}

// UnwrapKey opens a blob produced by WrapKey with the recipient's key pair.
func UnwrapKey(publicKey, privateKey *[32]byte, wrapped []byte) ([]byte, error) {
	key, ok := box.OpenAnonymous(nil, wrapped, publicKey, privateKey)
	if !ok {
		return nil, common.ErrCorruptOrWrongKey
	}
	return key, nil
}

// GenerateKeyPair returns a fresh recipient key pair.
func GenerateKeyPair() (publicKey, privateKey *[32]byte, err error) {
	return box.GenerateKey(rand.Reader)
}
