package trust

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func sha(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func TestComputeRoot_SHA256(t *testing.T) {
	a, b, c := sha([]byte("a")), sha([]byte("b")), sha([]byte("c"))

	tests := []struct {
		name   string
		leaves []string
		want   []byte
	}{
		{"single leaf", []string{"a"}, a},
		{"pair", []string{"a", "b"}, sha(a, b)},
		{"odd duplicates last", []string{"a", "b", "c"}, sha(sha(a, b), sha(c, c))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeRoot(HashSHA256, tt.leaves)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeRoot_BLAKE3(t *testing.T) {
	la := blake3.Sum256([]byte("a"))
	lb := blake3.Sum256([]byte("b"))
	want := blake3.Sum256(append(la[:], lb[:]...))

	got, err := ComputeRoot(HashBLAKE3, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, want[:], got)
}

func TestComputeRoot_Errors(t *testing.T) {
	_, err := ComputeRoot("md5", []string{"a"})
	assert.Error(t, err)

	_, err = ComputeRoot(HashSHA256, nil)
	assert.Error(t, err)
}
