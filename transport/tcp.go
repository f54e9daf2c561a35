// Package transport provides the TCP plumbing for a single ferry exchange:
// a listener that accepts exactly one peer, a dialer with bounded retries,
// and a connection wrapper that applies an I/O deadline to every call.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultAddress is the listen/connect address used when none is configured.
const DefaultAddress = "localhost:65432"

// Listen opens a TCP listener on addr.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// AcceptOne accepts a single connection and closes the listener.
// Cancelling ctx unblocks the accept.
//
// Concurrent clients are not supported: once a peer is accepted no further
// connections are taken.
func AcceptOne(ctx context.Context, ln net.Listener) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	_ = ln.Close()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("accept on %s: %w", ln.Addr(), ctxErr)
		}
		return nil, fmt.Errorf("accept on %s: %w", ln.Addr(), err)
	}
	return conn, nil
}

// DialConfig configures Dial.
type DialConfig struct {
	// Timeout bounds each connection attempt (0 = no per-attempt bound).
	Timeout time.Duration
	// Retries is the number of extra attempts after a refused connection.
	Retries int
	// Backoff is the initial delay between attempts; it doubles each retry.
	Backoff time.Duration
}

// DefaultBackoff is the initial retry delay when DialConfig.Backoff is unset.
const DefaultBackoff = 250 * time.Millisecond

// Dial connects to addr, retrying with exponential backoff while the
// sender is not yet listening.
func Dial(ctx context.Context, addr string, cfg DialConfig) (net.Conn, error) {
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	attempts := 1 + cfg.Retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}

		if i > 0 {
			delay := time.Duration(1<<uint(i-1)) * backoff
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("dial %s: context canceled during backoff: %w", addr, ctx.Err())
			case <-time.After(delay):
			}
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return nil, fmt.Errorf("dial %s failed after %d attempts: %w", addr, attempts, lastErr)
}

// retryable reports whether a dial error may succeed on a later attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
