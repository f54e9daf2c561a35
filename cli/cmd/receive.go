package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/adapter"
	"github.com/pithecene-io/ferry/cli/config"
	"github.com/pithecene-io/ferry/log"
	"github.com/pithecene-io/ferry/metrics"
	"github.com/pithecene-io/ferry/model"
	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/transport"
	"github.com/pithecene-io/ferry/types"
)

// ReceiveCommand returns the receive command.
// The receiver dials the sender, stores every routed item under --data-dir
// and, with --train, answers a result request with a fitted model.
func ReceiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "Connect to a sender, store its items and optionally return a model",
		Flags: joinFlags(
			[]cli.Flag{connectFlag(), dataDirFlag("Directory received items are stored in"), dialRetriesFlag()},
			ReceiverFlags(),
			TransferFlags(),
			AdapterFlags(),
			OutputFlags(),
		),
		Action:       receiveAction,
		OnUsageError: onUsageError,
	}
}

// receivePlan is a fully resolved receive invocation.
type receivePlan struct {
	connect      string
	dataDir      string
	reset        bool
	unknownKinds transfer.UnknownKindPolicy
	kinds        []types.Kind
	train        bool
	dialRetries  int
	transfer     transferSettings
	adapter      config.AdapterConfig
}

func resolveReceivePlan(c *cli.Context, cfg *config.Config) (*receivePlan, error) {
	rc := configVal(cfg, func(c *config.Config) config.ReceiverConfig { return c.Receiver })

	policy, err := transfer.ParseUnknownKindPolicy(resolveString(c, "unknown-kinds", rc.UnknownKinds))
	if err != nil {
		return nil, err
	}
	var kinds []types.Kind
	for _, k := range rc.Kinds {
		kinds = append(kinds, types.Kind(k))
	}
	adapterCfg, err := resolveAdapter(c, cfg)
	if err != nil {
		return nil, err
	}

	plan := &receivePlan{
		connect:      resolveString(c, "connect", configVal(cfg, func(c *config.Config) string { return c.Connect })),
		dataDir:      resolveString(c, "data-dir", rc.DataDir),
		reset:        resolveBool(c, "reset", rc.Reset),
		unknownKinds: policy,
		kinds:        kinds,
		train:        resolveBool(c, "train", rc.Train),
		dialRetries:  resolveIntPtr(c, "dial-retries", rc.DialRetries),
		transfer:     resolveTransfer(c, cfg),
		adapter:      adapterCfg,
	}
	if plan.dataDir == "" {
		return nil, errors.New("--data-dir is required")
	}
	if plan.dialRetries < 0 {
		return nil, errors.New("--dial-retries must be >= 0")
	}
	return plan, nil
}

// newDestination opens the receiver directory, emptying it first when
// reset is set.
func newDestination(dataDir string, reset bool, logger *log.Logger) (*storage.Dir, error) {
	dest, err := storage.NewDir(dataDir)
	if err != nil {
		return nil, err
	}
	if reset {
		if err := dest.Reset(); err != nil {
			return nil, err
		}
		logger.Info("data directory reset", map[string]any{"path": dest.Root()})
	}
	if err := dest.Ensure(); err != nil {
		return nil, err
	}
	return dest, nil
}

func newReceiver(plan *receivePlan, dest storage.Destination, opts transfer.Options) (*transfer.Receiver, error) {
	var trainer model.Trainer
	if plan.train {
		trainer = model.LeastSquares{}
	}
	return transfer.NewReceiver(transfer.ReceiverConfig{
		Options:      opts,
		Destination:  dest,
		Kinds:        plan.kinds,
		UnknownKinds: plan.unknownKinds,
		Trainer:      trainer,
		Dial: transport.DialConfig{
			Timeout: plan.transfer.ioTimeout,
			Retries: plan.dialRetries,
		},
	})
}

func receiveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return usageError("%v", err)
	}
	plan, err := resolveReceivePlan(c, cfg)
	if err != nil {
		return usageError("%v", err)
	}
	logger, err := newLogger(c)
	if err != nil {
		return usageError("%v", err)
	}
	defer func() { _ = logger.Sync() }()
	r, err := reportRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}

	dest, err := newDestination(plan.dataDir, plan.reset, logger)
	if err != nil {
		return usageError("%v", err)
	}
	ad, err := buildAdapter(plan.adapter)
	if err != nil {
		return usageError("adapter: %v", err)
	}
	if ad != nil {
		defer func() { _ = ad.Close() }()
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector := metrics.NewCollector(string(types.RoleReceiver), "")
	progress := startProgress(ctx, c, types.RoleReceiver, cancel)

	receiver, err := newReceiver(plan, dest, transferOptions(plan.transfer, logger, collector, progress.callback()))
	if err != nil {
		progress.finish(err, logger)
		return usageError("%v", err)
	}

	report, err := receiver.Run(ctx, plan.connect)
	progress.finish(err, logger)

	publishEvent(ctx, ad, adapter.ReceiveEvent(report, transfer.Outcome(err), err, time.Now()), logger)
	writeMetrics(plan.transfer.metricsFile, logger, collector)

	if r != nil && report != nil {
		if rerr := r.Render(report); rerr != nil {
			logger.Warn("render failed", map[string]any{"error": rerr.Error()})
		}
	}
	return exchangeExit(err)
}
