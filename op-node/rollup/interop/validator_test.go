package interop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeSupervisorClient struct {
	check func(ctx context.Context, entries []common.Hash, safety SafetyLevel, descriptor ExecutingDescriptor) error
}

func (f *fakeSupervisorClient) CheckAccessList(ctx context.Context, entries []common.Hash, safety SafetyLevel, descriptor ExecutingDescriptor) error {
	return f.check(ctx, entries, safety, descriptor)
}

func TestParseInboxEntriesFiltersByCrossL2Inbox(t *testing.T) {
	msgA := common.HexToHash("0xaa")
	msgB := common.HexToHash("0xbb")
	other := common.HexToHash("0xcc")
	accessList := types.AccessList{
		{Address: crossL2InboxAddress, StorageKeys: []common.Hash{msgA, msgB}},
		{Address: common.HexToAddress("0x01"), StorageKeys: []common.Hash{other}},
	}

	entries := ParseInboxEntries(accessList)
	require.Equal(t, []common.Hash{msgA, msgB}, entries)
}

func TestValidateMessagesSucceeds(t *testing.T) {
	client := &fakeSupervisorClient{check: func(context.Context, []common.Hash, SafetyLevel, ExecutingDescriptor) error {
		return nil
	}}
	v := NewValidator(client)
	err := v.ValidateMessages(context.Background(), nil, CrossUnsafe, ExecutingDescriptor{Timestamp: 100})
	require.NoError(t, err)
}

func TestValidateMessagesWrapsClientError(t *testing.T) {
	cause := errors.New("supervisor unreachable")
	client := &fakeSupervisorClient{check: func(context.Context, []common.Hash, SafetyLevel, ExecutingDescriptor) error {
		return cause
	}}
	v := NewValidator(client)
	err := v.ValidateMessages(context.Background(), nil, Safe, ExecutingDescriptor{})
	require.Error(t, err)
	require.False(t, IsTimeout(err))
	require.ErrorIs(t, err, cause)
}

// TestValidateMessagesTimeoutUpperBound is the property test from spec
// §8's "Timeout upper bound": validation returns within
// min(requested_timeout, client_timeout) + epsilon, even when the client
// never responds.
func TestValidateMessagesTimeoutUpperBound(t *testing.T) {
	client := &fakeSupervisorClient{check: func(ctx context.Context, _ []common.Hash, _ SafetyLevel, _ ExecutingDescriptor) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	v := NewValidator(client)

	requested := 50 * time.Millisecond
	start := time.Now()
	err := v.ValidateMessagesWithTimeout(context.Background(), nil, Unsafe, ExecutingDescriptor{}, requested)
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, IsTimeout(err))
	require.Less(t, elapsed, requested+200*time.Millisecond)
}

func TestValidateMessagesHonorsExecutingDescriptorTimeout(t *testing.T) {
	var gotDeadline bool
	client := &fakeSupervisorClient{check: func(ctx context.Context, _ []common.Hash, _ SafetyLevel, _ ExecutingDescriptor) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	}}
	v := NewValidator(client)
	seconds := uint64(5)
	err := v.ValidateMessages(context.Background(), nil, Safe, ExecutingDescriptor{Timeout: &seconds})
	require.NoError(t, err)
	require.True(t, gotDeadline)
}
