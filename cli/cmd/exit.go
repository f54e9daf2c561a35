package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// Exit codes.
const (
	exitSuccess           = 0
	exitTransferFailed    = 1
	exitValidationFailed  = 2
	exitComputationFailed = 3
	exitUsage             = 4
)

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return exitSuccess
	case types.OutcomeValidationFailed:
		return exitValidationFailed
	case types.OutcomeComputationFailed:
		return exitComputationFailed
	default:
		return exitTransferFailed
	}
}

// exchangeExit maps an exchange error to its exit code. A nil error
// returns nil.
func exchangeExit(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(err.Error(), outcomeToExitCode(transfer.Outcome(err)))
}

// usageError reports a configuration or flag problem.
func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitUsage)
}

// onUsageError maps flag parse failures to the usage exit code.
func onUsageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(err.Error(), exitUsage)
}
