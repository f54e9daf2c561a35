// Package transfer implements the two roles of a ferry exchange.
//
// The Sender accepts exactly one connection, announces a manifest and
// streams every item as a descriptor frame followed by its raw bytes. The
// Receiver dials the sender, stores and validates each item, and when the
// manifest asks for it trains a model and returns the blob as one frame.
// Both roles are strictly sequential and single-use.
package transfer

// State is the position of a role in its exchange state machine.
//
// Sender: listening → connected → sending_item(i)… → [awaiting_result →
// storing_result] → closed.
//
// Receiver: connecting → connected → receiving_item(i) → validating_item(i)…
// → [computing → sending_result] → closed.
type State string

// Exchange states.
const (
	StateListening      State = "listening"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateSendingItem    State = "sending_item"
	StateReceivingItem  State = "receiving_item"
	StateValidatingItem State = "validating_item"
	StateAwaitingResult State = "awaiting_result"
	StateStoringResult  State = "storing_result"
	StateComputing      State = "computing"
	StateSendingResult  State = "sending_result"
	StateClosed         State = "closed"
)
