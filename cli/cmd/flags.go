// Package cmd provides CLI commands for the ferry binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/transport"
	"github.com/pithecene-io/ferry/wire"
)

// Output flags shared by every command.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables the Bubble Tea progress view on stderr.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Show an interactive progress view (send, receive, loopback)",
	}

	// QuietFlag suppresses the report.
	QuietFlag = &cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "Suppress report output",
	}
)

// OutputFlags returns the shared output flags.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		QuietFlag,
	}
}

// TransferFlags returns the flags shared by the exchange commands.
func TransferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to ferry.yaml",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Copy buffer size in bytes",
			Value: wire.DefaultChunkSize,
		},
		&cli.DurationFlag{
			Name:  "io-timeout",
			Usage: "Per-read/write deadline (0 disables)",
		},
		&cli.Int64Flag{
			Name:  "max-frame-size",
			Usage: "Largest accepted metadata or result frame in bytes",
			Value: wire.DefaultMaxPayloadSize,
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus text metrics to this path when the exchange ends",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
	}
}

// SenderFlags returns the flags that configure the sending role.
func SenderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "item",
			Aliases: []string{"i"},
			Usage:   "Item to send as kind=name (repeatable, sent in order)",
		},
		&cli.BoolFlag{
			Name:  "expect-result",
			Usage: "Await a result blob from the receiver",
		},
		&cli.BoolFlag{
			Name:  "verify-model",
			Usage: "Score the returned model against the sent features and labels",
		},
	}
}

// ReceiverFlags returns the flags that configure the receiving role.
func ReceiverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "Empty the data directory before receiving",
		},
		&cli.StringFlag{
			Name:  "unknown-kinds",
			Usage: "Policy for unrouted item kinds: reject or skip",
			Value: "reject",
		},
		&cli.BoolFlag{
			Name:  "train",
			Usage: "Fit a least-squares model when the sender expects a result",
		},
	}
}

// StorageFlags returns the result storage flags.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Result storage backend: fs, s3 or memory (empty disables)",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Result storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Dataset name results are stored under",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint URL for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// AdapterFlags returns the completion notification flags.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or Redis URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
			Value: 3,
		},
	}
}

func listenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "listen",
		Aliases: []string{"l"},
		Usage:   "Address to accept the receiver on",
		Value:   transport.DefaultAddress,
	}
}

func connectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "connect",
		Usage: "Sender address to dial",
		Value: transport.DefaultAddress,
	}
}

func dataDirFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:    "data-dir",
		Aliases: []string{"d"},
		Usage:   usage,
	}
}

func dialRetriesFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "dial-retries",
		Usage: "Extra connection attempts while the sender is not listening",
		Value: 5,
	}
}

func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
