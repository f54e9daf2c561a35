//nolint:revive // types is a common Go package naming convention
package types

import "time"

// Role identifies which side of an exchange produced a report.
type Role string

// Exchange roles.
const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// OutcomeStatus is the terminal status of an exchange.
type OutcomeStatus string

// Outcome statuses, ordered from success to the most specific failure.
const (
	OutcomeSuccess           OutcomeStatus = "success"
	OutcomeTransferFailed    OutcomeStatus = "transfer_failed"
	OutcomeValidationFailed  OutcomeStatus = "validation_failed"
	OutcomeComputationFailed OutcomeStatus = "computation_failed"
)

// ItemReport records one transferred item.
type ItemReport struct {
	Kind     Kind          `json:"kind" yaml:"kind"`
	Name     string        `json:"name" yaml:"name"`
	Size     int64         `json:"size" yaml:"size"`
	Path     string        `json:"path,omitempty" yaml:"path,omitempty"`
	Skipped  bool          `json:"skipped" yaml:"skipped"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// SendReport summarizes an exchange from the sender's side.
type SendReport struct {
	ExchangeID string        `json:"exchange_id" yaml:"exchange_id"`
	Peer       string        `json:"peer" yaml:"peer"`
	Items      []ItemReport  `json:"items" yaml:"items"`
	BytesSent  int64         `json:"bytes_sent" yaml:"bytes_sent"`
	Result     []byte        `json:"-" yaml:"-"`
	ResultSize int           `json:"result_size" yaml:"result_size"`
	ResultPath string        `json:"result_path,omitempty" yaml:"result_path,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Slots maps item kinds to the validated item that fills them.
// A Slots value is owned by a single exchange.
type Slots map[Kind]ItemReport

// ReceiveReport summarizes an exchange from the receiver's side.
type ReceiveReport struct {
	ExchangeID    string        `json:"exchange_id" yaml:"exchange_id"`
	Peer          string        `json:"peer" yaml:"peer"`
	Items         []ItemReport  `json:"items" yaml:"items"`
	Slots         Slots         `json:"slots" yaml:"slots"`
	BytesReceived int64         `json:"bytes_received" yaml:"bytes_received"`
	ResultSize    int           `json:"result_size" yaml:"result_size"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}
