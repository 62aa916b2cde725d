// Package trust verifies a recipient's public key against three independent
// sources before anything is encrypted to it: the published key record, the
// Merkle root anchored in the ledger, and the leaf-set file behind that root.
package trust

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/logging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/observability"
)

// PublicKeyObject is the object key of a user's key record in their bucket.
const PublicKeyObject = ".pubKey"

// Recipient identifies a user and where their profile lives.
type Recipient struct {
	UserID string
	Bucket string
	Region string
}

// ObjectGetter reads whole objects from one region.
type ObjectGetter interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// GetterFactory opens an ObjectGetter for a region.
type GetterFactory func(ctx context.Context, region string) (ObjectGetter, error)

type Outcome int

const (
	OutcomeVerified Outcome = iota + 1
	OutcomeUnanchored
	OutcomeTampered
	OutcomeTransientError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeUnanchored:
		return "unanchored"
	case OutcomeTampered:
		return "tampered"
	case OutcomeTransientError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one verification. Record is set for verified and
// unanchored outcomes. ComputedRoot is set whenever a tree was rebuilt.
type Result struct {
	Outcome      Outcome
	Reason       string
	ComputedRoot string
	Record       *PublicKeyRecord
	Err          error
}

// Usable reports whether a send may proceed to the recipient.
func (r Result) Usable() bool {
	return r.Outcome == OutcomeVerified || r.Outcome == OutcomeUnanchored
}

// AsError maps the outcome onto the common error taxonomy.
func (r Result) AsError() error {
	switch r.Outcome {
	case OutcomeVerified:
		return nil
	case OutcomeUnanchored:
		return common.ErrTrustUnanchored
	case OutcomeTampered:
		return fmt.Errorf("%w: %s", common.ErrTrustTampering, r.Reason)
	default:
		return r.Err
	}
}

type Verifier struct {
	ledger       Ledger
	getters      GetterFactory
	merkleBucket string
	merkleRegion string
	log          logging.Logger
	metrics      *observability.Metrics

	mu       sync.Mutex
	byRegion map[string]ObjectGetter
}

func NewVerifier(ledger Ledger, getters GetterFactory, merkleBucket, merkleRegion string, log logging.Logger, metrics *observability.Metrics) *Verifier {
	if log == nil {
		log = logging.Nop()
	}
	return &Verifier{
		ledger:       ledger,
		getters:      getters,
		merkleBucket: merkleBucket,
		merkleRegion: merkleRegion,
		log:          log,
		metrics:      metrics,
		byRegion:     make(map[string]ObjectGetter),
	}
}

// Verify runs the full check for r. It performs no retries; a fetch failure
// comes back as OutcomeTransientError with Err set.
func (v *Verifier) Verify(ctx context.Context, r Recipient) Result {
	res := v.verify(ctx, r)
	v.metrics.RecordTrust(res.Outcome.String())

	log := v.log.With("user_id", r.UserID, "outcome", res.Outcome.String())
	switch res.Outcome {
	case OutcomeTampered:
		log.Error(ctx, "public key verification failed", "reason", res.Reason, "computed_root", res.ComputedRoot)
	case OutcomeTransientError:
		log.Warn(ctx, "public key verification incomplete", "error", res.Err)
	default:
		log.Info(ctx, "public key verification finished")
	}
	return res
}

func (v *Verifier) verify(ctx context.Context, r Recipient) Result {
	keys, err := v.getter(ctx, r.Region)
	if err != nil {
		return failed(err)
	}
	raw, err := keys.Get(ctx, r.Bucket, PublicKeyObject)
	if err != nil {
		return failed(fmt.Errorf("public key record: %w", err))
	}
	record, err := ParsePublicKeyRecord(raw)
	if err != nil {
		return failed(err)
	}

	ledgerRoot, err := v.ledger.Root(ctx, r.UserID)
	if err != nil {
		return failed(err)
	}
	if IsZeroRoot(ledgerRoot) {
		return Result{Outcome: OutcomeUnanchored, Record: record}
	}

	merkle, err := v.getter(ctx, v.merkleRegion)
	if err != nil {
		return failed(err)
	}
	raw, err = merkle.Get(ctx, v.merkleBucket, LeafSetKey(ledgerRoot))
	if err != nil {
		return failed(fmt.Errorf("leaf set: %w", err))
	}
	set, err := ParseLeafSet(raw)
	if err != nil {
		return failed(err)
	}

	return checkLeafSet(r.UserID, record, set, ledgerRoot)
}

// checkLeafSet cross-checks the key record and the ledger root against the
// leaf set.
func checkLeafSet(userID string, record *PublicKeyRecord, set *LeafSet, ledgerRoot []byte) Result {
	computed, err := ComputeRoot(set.Merkle.HashAlgorithm, set.Merkle.Leaves)
	if err != nil {
		return tampered(err.Error(), "")
	}
	computedHex := hex.EncodeToString(computed)

	leaf, err := set.LeafFor(userID)
	if err != nil {
		return tampered(err.Error(), computedHex)
	}
	if leaf.UserID != userID {
		return tampered(fmt.Sprintf("leaf set entry for %s belongs to %s", userID, leaf.UserID), computedHex)
	}
	if leaf.PubKey != record.PubKey || leaf.KeyID != record.KeyID {
		return tampered("published key does not match the leaf set", computedHex)
	}

	claimed, err := set.ClaimedRoot()
	if err != nil || !bytes.Equal(claimed, computed) {
		return tampered("leaf set root does not match its leaves", computedHex)
	}
	if !bytes.Equal(computed, ledgerRoot) {
		return tampered("leaf set root does not match the ledger", computedHex)
	}

	return Result{Outcome: OutcomeVerified, ComputedRoot: computedHex, Record: record}
}

func (v *Verifier) getter(ctx context.Context, region string) (ObjectGetter, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if g, ok := v.byRegion[region]; ok {
		return g, nil
	}
	g, err := v.getters(ctx, region)
	if err != nil {
		return nil, err
	}
	v.byRegion[region] = g
	return g, nil
}

func failed(err error) Result {
	return Result{Outcome: OutcomeTransientError, Reason: err.Error(), Err: err}
}

func tampered(reason, computedRoot string) Result {
	return Result{Outcome: OutcomeTampered, Reason: reason, ComputedRoot: computedRoot}
}
