// Package adapter defines the notification adapter boundary.
//
// Adapters publish exchange completion notifications to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/ferry/types"
)

// EventTypeExchangeCompleted is the event_type of every published event.
const EventTypeExchangeCompleted = "exchange_completed"

// ExchangeCompletedEvent is the payload published when an exchange ends,
// successfully or not.
type ExchangeCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "exchange_completed"
	ExchangeID      string `json:"exchange_id"`
	Role            string `json:"role"`    // sender or receiver
	Outcome         string `json:"outcome"` // success, transfer_failed, etc.
	Error           string `json:"error,omitempty"`
	Peer            string `json:"peer,omitempty"`
	ItemCount       int    `json:"item_count"`
	Bytes           int64  `json:"bytes"`
	ResultBytes     int    `json:"result_bytes"`
	ResultPath      string `json:"result_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

func newEvent(role types.Role, outcome types.OutcomeStatus, err error, now time.Time) *ExchangeCompletedEvent {
	e := &ExchangeCompletedEvent{
		ContractVersion: types.Version,
		EventType:       EventTypeExchangeCompleted,
		Role:            string(role),
		Outcome:         string(outcome),
		Timestamp:       now.UTC().Format(time.RFC3339),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// SendEvent builds the event for a sender report. report may be nil when
// the exchange failed before a connection was accepted.
func SendEvent(report *types.SendReport, outcome types.OutcomeStatus, err error, now time.Time) *ExchangeCompletedEvent {
	e := newEvent(types.RoleSender, outcome, err, now)
	if report != nil {
		e.ExchangeID = report.ExchangeID
		e.Peer = report.Peer
		e.ItemCount = len(report.Items)
		e.Bytes = report.BytesSent
		e.ResultBytes = report.ResultSize
		e.ResultPath = report.ResultPath
		e.DurationMs = report.Duration.Milliseconds()
	}
	return e
}

// ReceiveEvent builds the event for a receiver report. report may be nil
// when the exchange failed before connecting.
func ReceiveEvent(report *types.ReceiveReport, outcome types.OutcomeStatus, err error, now time.Time) *ExchangeCompletedEvent {
	e := newEvent(types.RoleReceiver, outcome, err, now)
	if report != nil {
		e.ExchangeID = report.ExchangeID
		e.Peer = report.Peer
		e.ItemCount = len(report.Items)
		e.Bytes = report.BytesReceived
		e.ResultBytes = report.ResultSize
		e.DurationMs = report.Duration.Milliseconds()
	}
	return e
}

// Adapter publishes exchange completion events to a downstream system.
type Adapter interface {
	// Publish sends an exchange completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ExchangeCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; it doubles each retry.
const BaseBackoff = 500 * time.Millisecond

// Retry calls attempt up to 1+retries times with exponential backoff
// between attempts. It stops early when attempt succeeds, when ctx is
// done, or when permanent reports the error as non-retriable.
func Retry(ctx context.Context, name string, retries int, attempt func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
