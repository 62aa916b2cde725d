package trust

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cryptox"
)

// PublicKeyRecord is a user's published public key. Signatures stay opaque.
type PublicKeyRecord struct {
	Version    int               `json:"version"`
	KeyID      string            `json:"keyID"`
	UserID     string            `json:"userID"`
	PubKey     string            `json:"pubKey"`
	Signatures []json.RawMessage `json:"auth,omitempty"`
}

// ParsePublicKeyRecord decodes a fetched record and checks its key material.
func ParsePublicKeyRecord(b []byte) (*PublicKeyRecord, error) {
	var r PublicKeyRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: public key record: %v", common.ErrServerRejected, err)
	}
	if _, err := r.Key(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Key returns the raw recipient key used for key wrapping.
func (r *PublicKeyRecord) Key() ([]byte, error) {
	k, err := base64.StdEncoding.DecodeString(r.PubKey)
	if err != nil || len(k) != cryptox.PublicKeySize {
		return nil, fmt.Errorf("%w: public key of record %q", common.ErrBadKeyLength, r.KeyID)
	}
	return k, nil
}

// Leaf is the content of one leaf-set entry.
type Leaf struct {
	UserID string `json:"userID"`
	PubKey string `json:"pubKey"`
	KeyID  string `json:"keyID"`
}

// LeafSet is the published file whose Merkle root is anchored in the ledger.
// Leaves hold serialized Leaf values; Lookup maps a user id to its index.
type LeafSet struct {
	Merkle struct {
		Root          string   `json:"root"`
		HashAlgorithm string   `json:"hashAlgorithm"`
		Leaves        []string `json:"leaves"`
	} `json:"merkle"`
	Lookup map[string]int `json:"lookup"`
}

func ParseLeafSet(b []byte) (*LeafSet, error) {
	var s LeafSet
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: leaf set: %v", common.ErrServerRejected, err)
	}
	return &s, nil
}

// LeafFor returns the decoded leaf of userID.
func (s *LeafSet) LeafFor(userID string) (Leaf, error) {
	idx, ok := s.Lookup[userID]
	if !ok {
		return Leaf{}, fmt.Errorf("user %s is not in the leaf set", userID)
	}
	if idx < 0 || idx >= len(s.Merkle.Leaves) {
		return Leaf{}, fmt.Errorf("leaf index %d out of range", idx)
	}
	var leaf Leaf
	if err := json.Unmarshal([]byte(s.Merkle.Leaves[idx]), &leaf); err != nil {
		return Leaf{}, fmt.Errorf("leaf %d is not decodable", idx)
	}
	return leaf, nil
}

// ClaimedRoot is the root written in the file.
func (s *LeafSet) ClaimedRoot() ([]byte, error) {
	return decodeHex(s.Merkle.Root)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
}

// LeafSetKey is the object key of the leaf-set file for root.
func LeafSetKey(root []byte) string {
	return hex.EncodeToString(root) + ".json"
}
