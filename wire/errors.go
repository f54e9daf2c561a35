package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Sentinel errors for wire failure classification.
// Use errors.Is(err, ErrXxx); every *Error matches exactly one of them.
var (
	// ErrProtocol indicates a malformed or oversized frame.
	ErrProtocol = errors.New("protocol error")

	// ErrTruncated indicates the peer closed the stream before the
	// declared number of bytes was delivered.
	ErrTruncated = errors.New("truncated stream")

	// ErrSizeMismatch indicates a payload boundary violation.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrTimeout indicates an I/O deadline expired.
	ErrTimeout = errors.New("i/o deadline exceeded")

	// ErrIO indicates any other transport or local I/O failure.
	ErrIO = errors.New("i/o error")
)

// ErrInvalidChunkSize is returned by CopyExact for chunk sizes below 1.
// It is an argument error, not a wire failure.
var ErrInvalidChunkSize = errors.New("chunk size must be at least 1")

// Error wraps an underlying error with wire classification.
type Error struct {
	// Kind is the sentinel for classification (e.g. ErrTruncated).
	Kind error
	// Op is the operation that failed (e.g. "read length prefix").
	Op string
	// Copied is the number of payload bytes moved before the failure.
	Copied int64
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newError(kind error, op string, copied int64, err error) *Error {
	return &Error{Kind: kind, Op: op, Copied: copied, Err: err}
}

// classify wraps a raw I/O error from the stream or sink.
func classify(op string, copied int64, err error) error {
	if err == nil {
		return nil
	}
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return err
	}
	return newError(kindOf(err), op, copied, err)
}

func kindOf(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return ErrTruncated
	}
	return ErrIO
}
