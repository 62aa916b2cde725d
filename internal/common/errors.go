// Package common defines shared constants and sentinel errors. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Transport-level errors.
	ErrTransientNetwork = errors.New("transient network failure")
	ErrServerRejected   = errors.New("server rejected request")

	// Trust errors.
	ErrTrustTampering  = errors.New("public key tampering detected")
	ErrTrustUnanchored = errors.New("recipient not anchored in ledger")

	// Polling gave up.
	ErrResourceExhausted = errors.New("resource exhausted")

	// Local invariant violations (unreadable file, corrupted buffer, ...).
	ErrLogicInvariant = errors.New("logic invariant violated")

	ErrNotFound          = errors.New("not found")
	ErrBadKeyLength      = errors.New("unsupported key length")
	ErrCorruptOrWrongKey = errors.New("corrupt ciphertext or wrong key")

	// Orchestrator already driving a send.
	ErrBusy = errors.New("send already in progress")
)

// IsRetryable reports whether err should enter the automatic retry countdown.
// Only transport failures and explicit server rejections qualify; every other
// error, including unknown ones, is fatal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrServerRejected)
}
