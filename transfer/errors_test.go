package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

func TestFailedError_Chain(t *testing.T) {
	it := types.NewItem(types.KindFeatureMatrix, "X.npy", 10)
	cause := &wire.Error{Kind: wire.ErrTruncated, Op: "read chunk", Copied: 4, Err: io.ErrUnexpectedEOF}
	err := fmt.Errorf("exchange: %w", fail(context.Background(), types.RoleReceiver, StateReceivingItem, 0, &it, cause))

	if !errors.Is(err, ErrTransferFailed) {
		t.Error("errors.Is(err, ErrTransferFailed) = false")
	}
	if !errors.Is(err, wire.ErrTruncated) {
		t.Error("errors.Is(err, wire.ErrTruncated) = false")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("underlying io error lost from chain")
	}
	if errors.Is(err, context.Canceled) {
		t.Error("unexpected context.Canceled")
	}

	msg := err.Error()
	for _, want := range []string{"receiver", "receiving_item(0)", "X.npy"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestFail_JoinsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fail(ctx, types.RoleSender, StateSendingItem, 1, nil, wire.ErrTruncated)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, wire.ErrTruncated) {
		t.Errorf("err = %v, want both context.Canceled and ErrTruncated", err)
	}
	if ErrorKind(err) != "canceled" {
		t.Errorf("ErrorKind = %q, want canceled", ErrorKind(err))
	}
}

func TestOutcome(t *testing.T) {
	wrapFail := func(state State, err error) error {
		return fail(context.Background(), types.RoleReceiver, state, 0, nil, err)
	}
	sizeMismatch := &wire.Error{Kind: wire.ErrSizeMismatch, Op: "validate item"}

	tests := []struct {
		name string
		err  error
		want types.OutcomeStatus
	}{
		{"nil", nil, types.OutcomeSuccess},
		{"truncated", wrapFail(StateReceivingItem, wire.ErrTruncated), types.OutcomeTransferFailed},
		{"timeout", wrapFail(StateConnected, wire.ErrTimeout), types.OutcomeTransferFailed},
		{"protocol", wrapFail(StateConnected, wire.ErrProtocol), types.OutcomeTransferFailed},
		{"empty", wrapFail(StateValidatingItem, ErrEmptyTransfer), types.OutcomeValidationFailed},
		{"unknown kind", wrapFail(StateConnected, ErrUnknownItemKind), types.OutcomeValidationFailed},
		{"stored size", wrapFail(StateValidatingItem, sizeMismatch), types.OutcomeValidationFailed},
		{"stream size", wrapFail(StateSendingItem, sizeMismatch), types.OutcomeTransferFailed},
		{"missing file", wrapFail(StateValidatingItem, storage.ErrNotFound), types.OutcomeValidationFailed},
		{"computation", wrapFail(StateComputing, ErrComputationFailed), types.OutcomeComputationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.err); got != tt.want {
				t.Errorf("Outcome = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{wire.ErrProtocol, "protocol"},
		{wire.ErrTruncated, "truncated"},
		{wire.ErrSizeMismatch, "size_mismatch"},
		{ErrEmptyTransfer, "empty_transfer"},
		{ErrUnknownItemKind, "unknown_kind"},
		{types.ErrInvalidItem, "invalid_item"},
		{storage.NewStorageError(storage.ErrDiskFull, "write", "/x", nil), "storage"},
		{errors.New("other"), "io"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
