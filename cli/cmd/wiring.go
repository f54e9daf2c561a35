package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/ferry/adapter"
	redisadapter "github.com/pithecene-io/ferry/adapter/redis"
	"github.com/pithecene-io/ferry/adapter/webhook"
	"github.com/pithecene-io/ferry/cli/config"
	"github.com/pithecene-io/ferry/cli/render"
	"github.com/pithecene-io/ferry/cli/tui"
	"github.com/pithecene-io/ferry/log"
	"github.com/pithecene-io/ferry/metrics"
	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

func newLogger(c *cli.Context) (*log.Logger, error) {
	level, err := zapcore.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return log.NewLoggerAt(log.Context{}, level), nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildResultSink returns nil when no backend is configured.
func buildResultSink(ctx context.Context, s config.StorageConfig) (storage.ResultSink, error) {
	var (
		store *storage.ResultStore
		err   error
	)
	switch s.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		store, err = storage.NewMemoryResultStore(s.Dataset)
	case config.BackendFS:
		if s.Path == "" {
			return nil, fmt.Errorf("--storage-path is required for backend fs")
		}
		store, err = storage.NewFSResultStore(s.Dataset, s.Path)
	case config.BackendS3:
		if s.Path == "" {
			return nil, fmt.Errorf("--storage-path is required for backend s3")
		}
		bucket, prefix := storage.ParseS3Path(s.Path)
		store, err = storage.NewS3ResultStore(ctx, s.Dataset, storage.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.Region,
			Endpoint:     s.Endpoint,
			UsePathStyle: s.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown --storage-backend %q (must be fs, s3 or memory)", s.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(a config.AdapterConfig) (adapter.Adapter, error) {
	retries := redisadapter.DefaultRetries
	if a.Retries != nil {
		retries = *a.Retries
	}

	switch a.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		ad, err := webhook.New(webhook.Config{
			URL:     a.URL,
			Headers: a.Headers,
			Timeout: a.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return ad, nil
	case config.AdapterRedis:
		ad, err := redisadapter.New(redisadapter.Config{
			URL:     a.URL,
			Channel: a.Channel,
			Timeout: a.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return ad, nil
	default:
		return nil, fmt.Errorf("unknown --adapter %q (must be webhook or redis)", a.Type)
	}
}

// publishEvent delivers a completion event. Delivery failures are logged
// and never change the exit code.
func publishEvent(ctx context.Context, ad adapter.Adapter, event *adapter.ExchangeCompletedEvent, logger *log.Logger) {
	if ad == nil {
		return
	}
	// The exchange may have ended because ctx was canceled.
	if err := ad.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("adapter publish failed", map[string]any{
			"exchange_id": event.ExchangeID,
			"error":       err.Error(),
		})
		return
	}
	logger.Debug("adapter event published", map[string]any{"exchange_id": event.ExchangeID})
}

func writeMetrics(path string, logger *log.Logger, cs ...*metrics.Collector) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path, cs...); err != nil {
		logger.Warn("metrics write failed", map[string]any{"path": path, "error": err.Error()})
	}
}

// progressView wraps an optional TUI program.
type progressView struct {
	prog *tui.Program
}

func startProgress(ctx context.Context, c *cli.Context, role types.Role, cancel context.CancelFunc) *progressView {
	if !c.Bool("tui") {
		return &progressView{}
	}
	return &progressView{prog: tui.Start(ctx, role, os.Stderr, cancel)}
}

// callback returns nil without a TUI so that the roles fall back to
// decile debug logs.
func (v *progressView) callback() func(transfer.ProgressEvent) {
	if v.prog == nil {
		return nil
	}
	return v.prog.Progress
}

func (v *progressView) finish(err error, logger *log.Logger) {
	if v.prog == nil {
		return
	}
	if terr := v.prog.Finish(err); terr != nil {
		logger.Warn("progress view failed", map[string]any{"error": terr.Error()})
	}
}

// reportRenderer is nil under --quiet.
func reportRenderer(c *cli.Context) (*render.Renderer, error) {
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, err
	}
	if c.Bool("quiet") {
		return nil, nil
	}
	return r, nil
}

func transferOptions(ts transferSettings, logger *log.Logger, collector *metrics.Collector, progress func(transfer.ProgressEvent)) transfer.Options {
	return transfer.Options{
		ChunkSize:    ts.chunkSize,
		IOTimeout:    ts.ioTimeout,
		MaxFrameSize: ts.maxFrameSize,
		Logger:       logger,
		Collector:    collector,
		Progress:     progress,
	}
}
