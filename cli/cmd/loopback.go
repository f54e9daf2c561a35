package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/adapter"
	"github.com/pithecene-io/ferry/cli/config"
	"github.com/pithecene-io/ferry/cli/render"
	"github.com/pithecene-io/ferry/metrics"
	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// LoopbackCommand returns the loopback command.
// Both roles run in this process over 127.0.0.1, which makes it the
// quickest way to smoke-test a data directory and a trainer end to end.
func LoopbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "loopback",
		Usage: "Run sender and receiver in one process over a loopback connection",
		Flags: joinFlags(
			[]cli.Flag{
				&cli.StringFlag{Name: "send-dir", Usage: "Directory holding the items to send"},
				&cli.StringFlag{Name: "receive-dir", Usage: "Directory received items are stored in"},
			},
			SenderFlags(),
			ReceiverFlags(),
			TransferFlags(),
			StorageFlags(),
			AdapterFlags(),
			OutputFlags(),
		),
		Action:       loopbackAction,
		OnUsageError: onUsageError,
	}
}

// loopbackReport is the combined output of both roles.
type loopbackReport struct {
	Send    *types.SendReport    `json:"send" yaml:"send"`
	Receive *types.ReceiveReport `json:"receive" yaml:"receive"`
}

func loopbackAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return usageError("%v", err)
	}

	items, err := resolveItems(c, cfg)
	if err != nil {
		return usageError("%v", err)
	}
	adapterCfg, err := resolveAdapter(c, cfg)
	if err != nil {
		return usageError("%v", err)
	}
	send := &sendPlan{
		dataDir:      resolveString(c, "send-dir", configVal(cfg, func(c *config.Config) string { return c.Sender.DataDir })),
		items:        items,
		expectResult: resolveBool(c, "expect-result", configVal(cfg, func(c *config.Config) bool { return c.Sender.ExpectResult })),
		verifyModel:  c.Bool("verify-model"),
		transfer:     resolveTransfer(c, cfg),
		storage:      resolveStorage(c, cfg),
		adapter:      adapterCfg,
	}
	rc := configVal(cfg, func(c *config.Config) config.ReceiverConfig { return c.Receiver })
	policy, err := transfer.ParseUnknownKindPolicy(resolveString(c, "unknown-kinds", rc.UnknownKinds))
	if err != nil {
		return usageError("%v", err)
	}
	recv := &receivePlan{
		dataDir:      resolveString(c, "receive-dir", rc.DataDir),
		reset:        resolveBool(c, "reset", rc.Reset),
		unknownKinds: policy,
		train:        resolveBool(c, "train", rc.Train),
		transfer:     send.transfer,
	}
	for _, k := range rc.Kinds {
		recv.kinds = append(recv.kinds, types.Kind(k))
	}
	switch {
	case send.dataDir == "":
		return usageError("--send-dir is required")
	case recv.dataDir == "":
		return usageError("--receive-dir is required")
	case send.verifyModel && !send.expectResult:
		return usageError("--verify-model requires --expect-result")
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

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, err := storage.NewDir(send.dataDir)
	if err != nil {
		return usageError("%v", err)
	}
	dest, err := newDestination(recv.dataDir, recv.reset, logger)
	if err != nil {
		return usageError("%v", err)
	}
	sink, err := buildResultSink(ctx, send.storage)
	if err != nil {
		return usageError("result storage: %v", err)
	}
	ad, err := buildAdapter(send.adapter)
	if err != nil {
		return usageError("adapter: %v", err)
	}
	if ad != nil {
		defer func() { _ = ad.Close() }()
	}

	sendCollector := metrics.NewCollector(string(types.RoleSender), send.storage.Backend)
	recvCollector := metrics.NewCollector(string(types.RoleReceiver), "")
	progress := startProgress(ctx, c, types.RoleSender, cancel)

	sender, err := transfer.NewSender(transfer.SenderConfig{
		Options:      transferOptions(send.transfer, logger, sendCollector, progress.callback()),
		Source:       source,
		Items:        send.items,
		ExpectResult: send.expectResult,
		Results:      sink,
	})
	if err != nil {
		progress.finish(err, logger)
		return usageError("%v", err)
	}
	receiver, err := newReceiver(recv, dest, transferOptions(recv.transfer, logger, recvCollector, nil))
	if err != nil {
		progress.finish(err, logger)
		return usageError("%v", err)
	}

	result, err := transfer.Loopback(ctx, sender, receiver)
	progress.finish(err, logger)
	if result == nil {
		result = &transfer.LoopbackResult{}
	}

	if err == nil && send.verifyModel {
		err = verifyModel(source, send.items, result.Send.Result, logger)
	}

	finished := time.Now()
	outcome := transfer.Outcome(err)
	publishEvent(ctx, ad, adapter.SendEvent(result.Send, outcome, err, finished), logger)
	publishEvent(ctx, ad, adapter.ReceiveEvent(result.Receive, outcome, err, finished), logger)
	writeMetrics(send.transfer.metricsFile, logger, sendCollector, recvCollector)

	if r != nil {
		if rerr := renderLoopback(r, result); rerr != nil {
			logger.Warn("render failed", map[string]any{"error": rerr.Error()})
		}
	}
	return exchangeExit(err)
}

// renderLoopback prints one table per role, or a single combined document
// for json and yaml.
func renderLoopback(r *render.Renderer, result *transfer.LoopbackResult) error {
	if r.Format() != render.FormatTable {
		return r.Render(loopbackReport{Send: result.Send, Receive: result.Receive})
	}
	var parts []any
	if result.Send != nil {
		parts = append(parts, result.Send)
	}
	if result.Receive != nil {
		parts = append(parts, result.Receive)
	}
	return r.RenderAll(parts...)
}
