package trust

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string][]byte

func (m memStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	b, ok := m[bucket+"/"+key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

type fakeLedger struct {
	root  []byte
	err   error
	calls int
}

func (f *fakeLedger) Root(ctx context.Context, userID string) ([]byte, error) {
	f.calls++
	return f.root, f.err
}

type fixture struct {
	store  memStore
	ledger *fakeLedger
	record PublicKeyRecord
	set    LeafSet
	root   []byte
}

func testPubKey(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(rune(b)), 32)))
}

// newFixture publishes a consistent three-user tree and anchors its root.
func newFixture(t *testing.T, alg string) *fixture {
	t.Helper()
	f := &fixture{
		store:  memStore{},
		record: PublicKeyRecord{Version: 1, KeyID: "key-bob", UserID: "bob", PubKey: testPubKey('b')},
	}

	users := []Leaf{
		{UserID: "alice", PubKey: testPubKey('a'), KeyID: "key-alice"},
		{UserID: "bob", PubKey: f.record.PubKey, KeyID: f.record.KeyID},
		{UserID: "carol", PubKey: testPubKey('c'), KeyID: "key-carol"},
	}
	f.set.Lookup = map[string]int{}
	for i, u := range users {
		b, err := json.Marshal(u)
		require.NoError(t, err)
		f.set.Merkle.Leaves = append(f.set.Merkle.Leaves, string(b))
		f.set.Lookup[u.UserID] = i
	}
	f.set.Merkle.HashAlgorithm = alg

	root, err := ComputeRoot(alg, f.set.Merkle.Leaves)
	require.NoError(t, err)
	f.root = root
	f.set.Merkle.Root = "0x" + hex.EncodeToString(root)
	f.ledger = &fakeLedger{root: root}
	return f
}

// reanchor recomputes the root after the leaves changed, so only the leaf
// contents can be at fault.
func (f *fixture) reanchor(t *testing.T) {
	t.Helper()
	root, err := ComputeRoot(f.set.Merkle.HashAlgorithm, f.set.Merkle.Leaves)
	require.NoError(t, err)
	f.root = root
	f.set.Merkle.Root = "0x" + hex.EncodeToString(root)
	f.ledger.root = root
}

func (f *fixture) publish(t *testing.T) {
	t.Helper()
	rec, err := json.Marshal(f.record)
	require.NoError(t, err)
	f.store["bob-bucket/"+PublicKeyObject] = rec

	set, err := json.Marshal(f.set)
	require.NoError(t, err)
	f.store["merkle/"+LeafSetKey(f.ledger.root)] = set
}

func (f *fixture) verifier() *Verifier {
	getters := func(ctx context.Context, region string) (ObjectGetter, error) { return f.store, nil }
	return NewVerifier(f.ledger, getters, "merkle", "us-west-2", nil, nil)
}

var bob = Recipient{UserID: "bob", Bucket: "bob-bucket", Region: "us-west-2"}

func TestVerify_Verified(t *testing.T) {
	for _, alg := range []string{HashSHA256, HashBLAKE3} {
		t.Run(alg, func(t *testing.T) {
			f := newFixture(t, alg)
			f.publish(t)

			res := f.verifier().Verify(context.Background(), bob)
			assert.Equal(t, OutcomeVerified, res.Outcome, res.Reason)
			assert.Equal(t, hex.EncodeToString(f.root), res.ComputedRoot)
			require.NotNil(t, res.Record)
			assert.Equal(t, "key-bob", res.Record.KeyID)
			assert.True(t, res.Usable())
			assert.NoError(t, res.AsError())
		})
	}
}

func TestVerify_Idempotent(t *testing.T) {
	f := newFixture(t, HashSHA256)
	f.publish(t)
	v := f.verifier()

	first := v.Verify(context.Background(), bob)
	second := v.Verify(context.Background(), bob)
	assert.Equal(t, first, second)

	f.ledger.root = make([]byte, 32)
	f.ledger.root[0] = 1
	f.publish(t)
	first = v.Verify(context.Background(), bob)
	second = v.Verify(context.Background(), bob)
	assert.Equal(t, OutcomeTampered, first.Outcome)
	assert.Equal(t, first, second)
}

func TestVerify_Unanchored(t *testing.T) {
	f := newFixture(t, HashSHA256)
	f.ledger.root = make([]byte, 32)
	f.publish(t)

	res := f.verifier().Verify(context.Background(), bob)
	assert.Equal(t, OutcomeUnanchored, res.Outcome)
	assert.True(t, res.Usable())
	assert.ErrorIs(t, res.AsError(), common.ErrTrustUnanchored)
	require.NotNil(t, res.Record)
}

func TestVerify_Tampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture)
		reason string
	}{
		{
			name: "ledger root differs from leaf set",
			mutate: func(t *testing.T, f *fixture) {
				f.ledger.root = append([]byte(nil), f.root...)
				f.ledger.root[0] ^= 0xff
			},
			reason: "ledger",
		},
		{
			name:   "published key swapped",
			mutate: func(t *testing.T, f *fixture) { f.record.PubKey = testPubKey('x') },
			reason: "published key",
		},
		{
			name:   "key id swapped",
			mutate: func(t *testing.T, f *fixture) { f.record.KeyID = "key-mallory" },
			reason: "published key",
		},
		{
			name:   "user missing from lookup",
			mutate: func(t *testing.T, f *fixture) { delete(f.set.Lookup, "bob") },
			reason: "not in the leaf set",
		},
		{
			name:   "lookup out of range",
			mutate: func(t *testing.T, f *fixture) { f.set.Lookup["bob"] = 7 },
			reason: "out of range",
		},
		{
			name: "lookup points at another user's leaf",
			mutate: func(t *testing.T, f *fixture) {
				forged, err := json.Marshal(Leaf{UserID: "carol", PubKey: f.record.PubKey, KeyID: f.record.KeyID})
				require.NoError(t, err)
				f.set.Merkle.Leaves[2] = string(forged)
				f.set.Lookup["bob"] = 2
				f.reanchor(t)
			},
			reason: "belongs to carol",
		},
		{
			name:   "leaf set claims another root",
			mutate: func(t *testing.T, f *fixture) { f.set.Merkle.Root = strings.Repeat("11", 32) },
			reason: "its leaves",
		},
		{
			name:   "unknown hash family",
			mutate: func(t *testing.T, f *fixture) { f.set.Merkle.HashAlgorithm = "md5" },
			reason: "unsupported",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, HashSHA256)
			tt.mutate(t, f)
			f.publish(t)

			res := f.verifier().Verify(context.Background(), bob)
			assert.Equal(t, OutcomeTampered, res.Outcome)
			assert.Contains(t, res.Reason, tt.reason)
			assert.False(t, res.Usable())
			assert.ErrorIs(t, res.AsError(), common.ErrTrustTampering)
			assert.False(t, common.IsRetryable(res.AsError()))
		})
	}
}

func TestVerify_FetchFailures(t *testing.T) {
	t.Run("missing public key", func(t *testing.T) {
		f := newFixture(t, HashSHA256)
		res := f.verifier().Verify(context.Background(), bob)
		assert.Equal(t, OutcomeTransientError, res.Outcome)
		assert.ErrorIs(t, res.AsError(), common.ErrNotFound)
		assert.Equal(t, 0, f.ledger.calls)
	})

	t.Run("ledger unreachable", func(t *testing.T) {
		f := newFixture(t, HashSHA256)
		f.publish(t)
		f.ledger.err = common.ErrTransientNetwork
		res := f.verifier().Verify(context.Background(), bob)
		assert.Equal(t, OutcomeTransientError, res.Outcome)
		assert.True(t, common.IsRetryable(res.AsError()))
	})

	t.Run("bad key material", func(t *testing.T) {
		f := newFixture(t, HashSHA256)
		f.record.PubKey = base64.StdEncoding.EncodeToString([]byte("short"))
		f.publish(t)
		res := f.verifier().Verify(context.Background(), bob)
		assert.Equal(t, OutcomeTransientError, res.Outcome)
		assert.ErrorIs(t, res.AsError(), common.ErrBadKeyLength)
	})
}
