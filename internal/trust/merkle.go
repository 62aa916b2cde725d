package trust

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Hash families a leaf-set file may declare.
const (
	HashSHA256 = "sha256"
	HashBLAKE3 = "blake3"
)

func newHash(alg string) (func() hash.Hash, error) {
	switch alg {
	case HashSHA256:
		return sha256.New, nil
	case HashBLAKE3:
		return func() hash.Hash { return blake3.New() }, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// ComputeRoot rebuilds the Merkle root over leaves. Each leaf is hashed, then
// levels are folded pairwise as hash(left || right); an odd node at the end
// of a level is paired with itself.
func ComputeRoot(alg string, leaves []string) ([]byte, error) {
	newH, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, fmt.Errorf("empty leaf set")
	}

	level := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		h := newH()
		h.Write([]byte(leaf))
		level[i] = h.Sum(nil)
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			h := newH()
			h.Write(level[i])
			h.Write(right)
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return level[0], nil
}
