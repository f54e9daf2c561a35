package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/ferry/model"
	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

// Role-level sentinel errors. Wire failures keep their wire sentinels
// (wire.ErrProtocol, wire.ErrTruncated, ...) inside a FailedError.
var (
	// ErrEmptyTransfer indicates a received item is empty although a
	// non-zero size was declared.
	ErrEmptyTransfer = errors.New("empty transfer")

	// ErrUnknownItemKind indicates a descriptor with a kind the receiver
	// does not route, under the reject policy.
	ErrUnknownItemKind = errors.New("unknown item kind")

	// ErrComputationFailed indicates the result computation failed or
	// could not be started.
	ErrComputationFailed = errors.New("computation failed")

	// ErrTransferFailed matches every FailedError.
	ErrTransferFailed = errors.New("transfer failed")
)

// FailedError is the terminal error of an exchange. It records where the
// exchange stopped and wraps the cause.
type FailedError struct {
	// Role is the side that failed.
	Role types.Role
	// State is the state the role was in.
	State State
	// Index is the item index, or -1 outside an item.
	Index int
	// Item is the descriptor being transferred, if any.
	Item *types.Item
	// Err is the cause.
	Err error
}

func (e *FailedError) Error() string {
	where := string(e.State)
	if e.Index >= 0 {
		where = fmt.Sprintf("%s(%d)", e.State, e.Index)
	}
	if e.Item != nil {
		return fmt.Sprintf("%s %s at %s [%s]: %v", e.Role, ErrTransferFailed, where, e.Item, e.Err)
	}
	return fmt.Sprintf("%s %s at %s: %v", e.Role, ErrTransferFailed, where, e.Err)
}

// Unwrap returns the cause for errors.Is/As chain traversal.
func (e *FailedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransferFailed.
func (e *FailedError) Is(target error) bool {
	return target == ErrTransferFailed
}

// fail builds a FailedError. When ctx is done the context error joins
// the chain so callers can tell cancellation from a peer failure.
func fail(ctx context.Context, role types.Role, state State, index int, item *types.Item, err error) *FailedError {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return &FailedError{Role: role, State: state, Index: index, Item: item, Err: err}
}

// Outcome maps an exchange error to its terminal status.
func Outcome(err error) types.OutcomeStatus {
	switch {
	case err == nil:
		return types.OutcomeSuccess
	case errors.Is(err, ErrComputationFailed):
		return types.OutcomeComputationFailed
	case errors.Is(err, ErrEmptyTransfer),
		errors.Is(err, ErrUnknownItemKind),
		errors.Is(err, types.ErrInvalidItem),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrNotRegular):
		return types.OutcomeValidationFailed
	case errors.Is(err, wire.ErrSizeMismatch):
		// Size mismatches found while validating a stored item are
		// validation failures; any other boundary violation is transport.
		var fe *FailedError
		if errors.As(err, &fe) && fe.State == StateValidatingItem {
			return types.OutcomeValidationFailed
		}
		return types.OutcomeTransferFailed
	default:
		return types.OutcomeTransferFailed
	}
}

// ErrorKind returns a short metric label for err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrComputationFailed), errors.Is(err, model.ErrMalformedInput):
		return "computation"
	case errors.Is(err, ErrEmptyTransfer):
		return "empty_transfer"
	case errors.Is(err, ErrUnknownItemKind):
		return "unknown_kind"
	case errors.Is(err, types.ErrInvalidItem):
		return "invalid_item"
	case errors.Is(err, wire.ErrTimeout):
		return "timeout"
	case errors.Is(err, wire.ErrProtocol):
		return "protocol"
	case errors.Is(err, wire.ErrTruncated):
		return "truncated"
	case errors.Is(err, wire.ErrSizeMismatch):
		return "size_mismatch"
	case errors.As(err, new(*storage.StorageError)):
		return "storage"
	default:
		return "io"
	}
}
