package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
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

// SendCommand returns the send command.
// The sender accepts exactly one receiver, streams the items and, with
// --expect-result, waits for the result blob.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Serve items to one receiver and optionally await a result",
		Flags: joinFlags(
			[]cli.Flag{listenFlag(), dataDirFlag("Directory holding the items to send")},
			SenderFlags(),
			TransferFlags(),
			StorageFlags(),
			AdapterFlags(),
			OutputFlags(),
		),
		Action:       sendAction,
		OnUsageError: onUsageError,
	}
}

// sendPlan is a fully resolved send invocation.
type sendPlan struct {
	listen       string
	dataDir      string
	items        []transfer.ItemSpec
	expectResult bool
	verifyModel  bool
	transfer     transferSettings
	storage      config.StorageConfig
	adapter      config.AdapterConfig
}

func resolveSendPlan(c *cli.Context, cfg *config.Config) (*sendPlan, error) {
	items, err := resolveItems(c, cfg)
	if err != nil {
		return nil, err
	}
	adapterCfg, err := resolveAdapter(c, cfg)
	if err != nil {
		return nil, err
	}
	plan := &sendPlan{
		listen:       resolveString(c, "listen", configVal(cfg, func(c *config.Config) string { return c.Listen })),
		dataDir:      resolveString(c, "data-dir", configVal(cfg, func(c *config.Config) string { return c.Sender.DataDir })),
		items:        items,
		expectResult: resolveBool(c, "expect-result", configVal(cfg, func(c *config.Config) bool { return c.Sender.ExpectResult })),
		verifyModel:  c.Bool("verify-model"),
		transfer:     resolveTransfer(c, cfg),
		storage:      resolveStorage(c, cfg),
		adapter:      adapterCfg,
	}
	if plan.dataDir == "" {
		return nil, errors.New("--data-dir is required")
	}
	if plan.verifyModel && !plan.expectResult {
		return nil, errors.New("--verify-model requires --expect-result")
	}
	if plan.storage.Backend != config.BackendNone && !plan.expectResult {
		return nil, errors.New("--storage-backend requires --expect-result")
	}
	return plan, nil
}

func sendAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return usageError("%v", err)
	}
	plan, err := resolveSendPlan(c, cfg)
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

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, err := storage.NewDir(plan.dataDir)
	if err != nil {
		return usageError("%v", err)
	}
	sink, err := buildResultSink(ctx, plan.storage)
	if err != nil {
		return usageError("result storage: %v", err)
	}
	ad, err := buildAdapter(plan.adapter)
	if err != nil {
		return usageError("adapter: %v", err)
	}
	if ad != nil {
		defer func() { _ = ad.Close() }()
	}

	collector := metrics.NewCollector(string(types.RoleSender), plan.storage.Backend)
	progress := startProgress(ctx, c, types.RoleSender, cancel)

	sender, err := transfer.NewSender(transfer.SenderConfig{
		Options:      transferOptions(plan.transfer, logger, collector, progress.callback()),
		Source:       source,
		Items:        plan.items,
		ExpectResult: plan.expectResult,
		Results:      sink,
	})
	if err != nil {
		progress.finish(err, logger)
		return usageError("%v", err)
	}

	report, err := serve(ctx, sender, plan.listen, logger)
	progress.finish(err, logger)

	if err == nil && plan.verifyModel {
		err = verifyModel(source, plan.items, report.Result, logger)
	}

	publishEvent(ctx, ad, adapter.SendEvent(report, transfer.Outcome(err), err, time.Now()), logger)
	writeMetrics(plan.transfer.metricsFile, logger, collector)

	if r != nil && report != nil {
		if rerr := r.Render(report); rerr != nil {
			logger.Warn("render failed", map[string]any{"error": rerr.Error()})
		}
	}
	return exchangeExit(err)
}

func serve(ctx context.Context, sender *transfer.Sender, addr string, logger *log.Logger) (*types.SendReport, error) {
	ln, err := transport.Listen(ctx, addr)
	if err != nil {
		return nil, err
	}
	logger.Info("listening", map[string]any{"addr": ln.Addr().String()})
	return sender.Serve(ctx, ln)
}

// verifyModel scores the returned model against the feature and label
// items that were sent.
func verifyModel(source storage.Source, items []transfer.ItemSpec, blob []byte, logger *log.Logger) error {
	var features, labels string
	for _, it := range items {
		switch it.Kind {
		case types.KindFeatureMatrix:
			features = it.Name
		case types.KindLabelVector:
			labels = it.Name
		}
	}
	if features == "" || labels == "" {
		return fmt.Errorf("%w: verify model: sent items lack a %s or %s", transfer.ErrComputationFailed, types.KindFeatureMatrix, types.KindLabelVector)
	}

	fr, err := openItem(source, features)
	if err != nil {
		return err
	}
	defer fr.Close()
	lr, err := openItem(source, labels)
	if err != nil {
		return err
	}
	defer lr.Close()

	rmse, err := model.Score(blob, fr, lr)
	if err != nil {
		return fmt.Errorf("%w: verify model: %w", transfer.ErrComputationFailed, err)
	}
	logger.Info("model verified", map[string]any{"rmse": rmse})
	return nil
}

func openItem(source storage.Source, name string) (io.ReadCloser, error) {
	rc, _, err := source.Open(name)
	if err != nil {
		return nil, fmt.Errorf("verify model: %w", err)
	}
	return rc, nil
}
