// Package interop implements the Supervisor Validator (C9): a thin,
// timeout-bounded wrapper around a remote supervisor's cross-chain
// message validation RPC. The supervisor itself, and the transport to
// it, are external collaborators out of scope for this module; only the
// client capability's interface is defined here.
//
// Grounded on kona's InteropTxValidator trait (original_source/crates/
// node/rpc/src/interop/mod.rs).
package interop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SafetyLevel names how settled a cross-chain message must be for the
// supervisor to accept it, following kona's SafetyLevel / op-supervisor's
// safety-level ladder (unsafe < cross-unsafe < local-safe < safe <
// finalized).
type SafetyLevel int

const (
	Unsafe SafetyLevel = iota
	CrossUnsafe
	LocalSafe
	Safe
	Finalized
)

func (s SafetyLevel) String() string {
	switch s {
	case Unsafe:
		return "unsafe"
	case CrossUnsafe:
		return "cross-unsafe"
	case LocalSafe:
		return "local-safe"
	case Safe:
		return "safe"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// ExecutingDescriptor carries the context the supervisor validates inbox
// entries against: the timestamp of the block executing the messages,
// and an optional caller-supplied timeout override, following kona's
// ExecutingDescriptor.
type ExecutingDescriptor struct {
	Timestamp uint64
	Timeout   *uint64
}

// crossL2InboxAddress is the CrossL2Inbox predeploy, the well-known
// target address that carries inbox-entry message hashes as EIP-2930
// access-list storage keys.
var crossL2InboxAddress = common.HexToAddress("0x4200000000000000000000000000000000000022")

// ParseInboxEntries extracts inbox entries (message hashes) from the
// storage keys of every access-list tuple targeting the CrossL2Inbox
// predeploy. Grounded on kona's parse_access_list_items_to_inbox_entries.
func ParseInboxEntries(accessList types.AccessList) []common.Hash {
	var entries []common.Hash
	for _, tuple := range accessList {
		if tuple.Address != crossL2InboxAddress {
			continue
		}
		entries = append(entries, tuple.StorageKeys...)
	}
	return entries
}

// ValidationError is returned by Validator.ValidateMessages on failure.
type ValidationError struct {
	// TimeoutSeconds is set, and Cause nil, when validation exceeded its
	// deadline.
	TimeoutSeconds uint64
	// Cause is set, and TimeoutSeconds zero, when the supervisor client
	// itself returned an error.
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("supervisor validation failed: %v", e.Cause)
	}
	return fmt.Sprintf("supervisor validation timed out after %ds", e.TimeoutSeconds)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is a ValidationError carrying a timeout,
// as opposed to an underlying client error.
func IsTimeout(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Cause == nil
}

// SupervisorClient is the remote supervisor capability consumed by
// Validator: check a set of inbox entries for validity at the given
// safety level. This is an external collaborator; the client's own
// request deadline, if any, is opaque to this package and may be shorter
// than the timeout Validator is asked to enforce.
type SupervisorClient interface {
	CheckAccessList(ctx context.Context, inboxEntries []common.Hash, safety SafetyLevel, executingDescriptor ExecutingDescriptor) error
}

// DefaultValidationTimeout bounds ValidateMessages when no explicit
// timeout is given, following kona's InteropTxValidator::DEFAULT_TIMEOUT.
const DefaultValidationTimeout = 2 * time.Second

// Validator wraps a SupervisorClient with a deadline that only ever
// shortens the client's own request timeout, never lengthens it (spec
// §4.7 elaboration).
type Validator struct {
	Client         SupervisorClient
	DefaultTimeout time.Duration
}

func NewValidator(client SupervisorClient) *Validator {
	return &Validator{Client: client, DefaultTimeout: DefaultValidationTimeout}
}

// ValidateMessages validates inboxEntries against the supervisor, using
// DefaultTimeout (or ExecutingDescriptor.Timeout, if set) as the upper
// bound on wall time.
func (v *Validator) ValidateMessages(ctx context.Context, inboxEntries []common.Hash, safety SafetyLevel, executingDescriptor ExecutingDescriptor) error {
	timeout := v.DefaultTimeout
	if executingDescriptor.Timeout != nil {
		timeout = time.Duration(*executingDescriptor.Timeout) * time.Second
	}
	return v.ValidateMessagesWithTimeout(ctx, inboxEntries, safety, executingDescriptor, timeout)
}

// ValidateMessagesWithTimeout validates inboxEntries against the
// supervisor, dropping the in-flight call and returning a
// ValidationError carrying timeout if it does not complete within
// timeout. A shorter deadline already in effect on ctx (e.g. the
// client's own configured timeout) still governs: if the underlying
// client has a shorter deadline, the client's deadline governs.
func (v *Validator) ValidateMessagesWithTimeout(ctx context.Context, inboxEntries []common.Hash, safety SafetyLevel, executingDescriptor ExecutingDescriptor, timeout time.Duration) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := v.Client.CheckAccessList(deadlineCtx, inboxEntries, safety, executingDescriptor)
	if err == nil {
		return nil
	}
	if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
		return &ValidationError{TimeoutSeconds: uint64(timeout.Seconds())}
	}
	return &ValidationError{Cause: err}
}
