package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/transport"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

// ItemSpec selects one local item to send. The size is taken from the
// source when the exchange starts.
type ItemSpec struct {
	Kind types.Kind `json:"kind" yaml:"kind"`
	Name string     `json:"name" yaml:"name"`
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	Options
	// Source resolves item names to local data.
	Source storage.Source
	// Items are sent in order.
	Items []ItemSpec
	// ExpectResult makes the sender await one result frame.
	ExpectResult bool
	// Results persists the result blob. If nil, the blob is only returned
	// in the report.
	Results storage.ResultSink
	// NewExchangeID overrides exchange id generation (default uuid v4).
	NewExchangeID func() string
}

// Sender is the producing role of an exchange.
type Sender struct {
	config SenderConfig
}

// NewSender validates config and creates a sender.
func NewSender(config SenderConfig) (*Sender, error) {
	config.Options = config.Options.withDefaults()
	if err := config.Options.validate(); err != nil {
		return nil, err
	}
	if config.Source == nil {
		return nil, errors.New("sender requires an item source")
	}
	if len(config.Items) == 0 {
		return nil, errors.New("sender requires at least one item")
	}
	if len(config.Items) > types.MaxManifestItems {
		return nil, fmt.Errorf("sender supports at most %d items, got %d", types.MaxManifestItems, len(config.Items))
	}
	seen := make(map[string]struct{}, len(config.Items))
	for i, spec := range config.Items {
		if _, err := types.ParseKind(string(spec.Kind)); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if err := types.ValidateName(spec.Name); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("item %d: %w: duplicate name %q", i, types.ErrInvalidItem, spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	if config.NewExchangeID == nil {
		config.NewExchangeID = uuid.NewString
	}
	return &Sender{config: config}, nil
}

// Serve accepts exactly one connection on ln, closes the listener and runs
// the exchange on that connection. Concurrent clients are not supported.
func (s *Sender) Serve(ctx context.Context, ln net.Listener) (*types.SendReport, error) {
	s.config.Logger.Info("listening", map[string]any{
		"role":    types.RoleSender,
		"address": ln.Addr().String(),
	})

	conn, err := transport.AcceptOne(ctx, ln)
	if err != nil {
		s.config.Collector.IncExchangeFailed(ErrorKind(err))
		return nil, fail(ctx, types.RoleSender, StateListening, -1, nil, err)
	}
	return s.Exchange(ctx, conn)
}

// Exchange runs the sender side on an established connection and closes it.
//
// Items are opened before the manifest is sent so the declared sizes
// come from the sources themselves. Cancelling ctx closes the connection
// and aborts any blocked I/O.
func (s *Sender) Exchange(ctx context.Context, conn net.Conn) (*types.SendReport, error) {
	start := time.Now()
	peer := conn.RemoteAddr().String()
	exchangeID := s.config.NewExchangeID()
	logger := s.config.Logger.With(map[string]any{
		"role":        types.RoleSender,
		"exchange_id": exchangeID,
		"peer":        peer,
	})
	collector := s.config.Collector
	collector.SetExchangeID(exchangeID)
	collector.IncExchangeStarted()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	report := &types.SendReport{ExchangeID: exchangeID, Peer: peer}
	failed := func(state State, index int, item *types.Item, err error) (*types.SendReport, error) {
		fe := fail(ctx, types.RoleSender, state, index, item, err)
		collector.IncExchangeFailed(ErrorKind(fe))
		logger.Error("exchange failed", map[string]any{
			"state": string(state),
			"index": index,
			"error": fe.Err.Error(),
		})
		report.Duration = time.Since(start)
		return report, fe
	}

	logger.Info("connection accepted", nil)

	sources, items, err := s.openItems()
	defer closeAll(sources)
	if err != nil {
		return failed(StateConnected, -1, nil, err)
	}

	rw := transport.NewDeadlineConn(conn, s.config.IOTimeout)
	enc := wire.NewFrameEncoder(rw)
	manifest := types.NewManifest(exchangeID, items, s.config.ExpectResult)
	if err := enc.WriteManifest(manifest); err != nil {
		return failed(StateConnected, -1, nil, err)
	}
	collector.IncFrameWritten()
	logger.Info("manifest sent", map[string]any{
		"items":         len(items),
		"total_bytes":   manifest.TotalBytes(),
		"expect_result": manifest.ExpectResult,
	})

	for i, it := range items {
		itemStart := time.Now()
		if err := enc.WriteItem(it); err != nil {
			return failed(StateSendingItem, i, &it, err)
		}
		collector.IncFrameWritten()

		progress := newProgressTracker(s.config.Options, logger, types.RoleSender, i, len(items), it)
		progress.start()
		n, err := wire.CopyExact(rw, sources[i], it.Size, s.config.ChunkSize, progress.update)
		report.BytesSent += n
		if err != nil {
			return failed(StateSendingItem, i, &it, err)
		}
		if err := wire.CheckDrained(sources[i]); err != nil {
			return failed(StateSendingItem, i, &it, err)
		}
		collector.AddItemSent(n)

		elapsed := time.Since(itemStart)
		report.Items = append(report.Items, types.ItemReport{
			Kind:     it.Kind,
			Name:     it.Name,
			Size:     it.Size,
			Duration: elapsed,
		})
		logger.Info("item sent", map[string]any{
			"index":       i,
			"kind":        string(it.Kind),
			"name":        it.Name,
			"size":        it.Size,
			"duration_ms": elapsed.Milliseconds(),
		})
	}

	if s.config.ExpectResult {
		dec := wire.NewFrameDecoder(rw, wire.WithMaxPayload(s.config.MaxFrameSize))
		blob, err := dec.ReadFrame()
		if err != nil {
			return failed(StateAwaitingResult, -1, nil, err)
		}
		collector.IncFrameRead()
		collector.AddResultBytes(int64(len(blob)))
		report.Result = blob
		report.ResultSize = len(blob)
		logger.Info("result received", map[string]any{"bytes": len(blob)})

		if s.config.Results != nil {
			path, err := s.config.Results.PutResult(ctx, exchangeID, blob)
			if err != nil {
				collector.IncResultStoreFailure()
				return failed(StateStoringResult, -1, nil, err)
			}
			collector.IncResultStoreSuccess()
			report.ResultPath = path
			logger.Info("result stored", map[string]any{"path": path})
		}
	}

	report.Duration = time.Since(start)
	collector.IncExchangeCompleted()
	logger.Info("exchange completed", map[string]any{
		"bytes_sent":  report.BytesSent,
		"duration_ms": report.Duration.Milliseconds(),
	})
	return report, nil
}

// openItems opens every configured item and builds its descriptor.
// The returned readers must be closed by the caller even on error.
func (s *Sender) openItems() ([]io.ReadCloser, []types.Item, error) {
	sources := make([]io.ReadCloser, 0, len(s.config.Items))
	items := make([]types.Item, 0, len(s.config.Items))
	for i, spec := range s.config.Items {
		rc, size, err := s.config.Source.Open(spec.Name)
		if err != nil {
			return sources, nil, fmt.Errorf("open item %d %q: %w", i, spec.Name, err)
		}
		sources = append(sources, rc)
		items = append(items, types.NewItem(spec.Kind, spec.Name, size))
	}
	return sources, items, nil
}

func closeAll(closers []io.ReadCloser) {
	for _, c := range closers {
		_ = c.Close()
	}
}
