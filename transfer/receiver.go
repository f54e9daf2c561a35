package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"github.com/pithecene-io/ferry/model"
	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/transport"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

// UnknownKindPolicy decides what the receiver does with an item whose kind
// it does not route.
type UnknownKindPolicy string

// Unknown kind policies.
const (
	// UnknownKindReject fails the exchange before any payload moves.
	UnknownKindReject UnknownKindPolicy = "reject"
	// UnknownKindSkip drains the payload and records the item as skipped.
	UnknownKindSkip UnknownKindPolicy = "skip"
)

// ParseUnknownKindPolicy parses a policy name. Empty selects reject.
func ParseUnknownKindPolicy(s string) (UnknownKindPolicy, error) {
	switch UnknownKindPolicy(s) {
	case "", UnknownKindReject:
		return UnknownKindReject, nil
	case UnknownKindSkip:
		return UnknownKindSkip, nil
	default:
		return "", fmt.Errorf("unknown kind policy %q (want reject or skip)", s)
	}
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	Options
	// Destination stores received items.
	Destination storage.Destination
	// Kinds are the routed kinds (default types.KnownKinds()).
	Kinds []types.Kind
	// UnknownKinds is the policy for kinds outside Kinds (default reject).
	UnknownKinds UnknownKindPolicy
	// Trainer computes the result blob when the manifest expects one.
	// If nil, such manifests fail with ErrComputationFailed.
	Trainer model.Trainer
	// Dial configures connection attempts made by Dial.
	Dial transport.DialConfig
}

// Receiver is the consuming role of an exchange.
type Receiver struct {
	config ReceiverConfig
}

// NewReceiver validates config and creates a receiver.
func NewReceiver(config ReceiverConfig) (*Receiver, error) {
	config.Options = config.Options.withDefaults()
	if err := config.Options.validate(); err != nil {
		return nil, err
	}
	if config.Destination == nil {
		return nil, errors.New("receiver requires a destination")
	}
	if len(config.Kinds) == 0 {
		config.Kinds = types.KnownKinds()
	}
	policy, err := ParseUnknownKindPolicy(string(config.UnknownKinds))
	if err != nil {
		return nil, err
	}
	config.UnknownKinds = policy
	return &Receiver{config: config}, nil
}

// Dial connects to the sender at addr, retrying per the Dial configuration.
func (r *Receiver) Dial(ctx context.Context, addr string) (net.Conn, error) {
	r.config.Logger.Info("connecting", map[string]any{
		"role":    types.RoleReceiver,
		"address": addr,
	})
	conn, err := transport.Dial(ctx, addr, r.config.Dial)
	if err != nil {
		r.config.Collector.IncExchangeFailed(ErrorKind(err))
		return nil, fail(ctx, types.RoleReceiver, StateConnecting, -1, nil, err)
	}
	return conn, nil
}

// Run dials addr and runs the exchange.
func (r *Receiver) Run(ctx context.Context, addr string) (*types.ReceiveReport, error) {
	conn, err := r.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return r.Exchange(ctx, conn)
}

// Exchange runs the receiver side on an established connection and closes it.
//
// The manifest is checked in full before any payload is read: item rules,
// kind routing and, when a result is expected, that a trainer and both
// input slots are available. Every descriptor must then match its
// manifest entry exactly.
func (r *Receiver) Exchange(ctx context.Context, conn net.Conn) (*types.ReceiveReport, error) {
	start := time.Now()
	peer := conn.RemoteAddr().String()
	logger := r.config.Logger.With(map[string]any{
		"role": types.RoleReceiver,
		"peer": peer,
	})
	collector := r.config.Collector
	collector.IncExchangeStarted()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	report := &types.ReceiveReport{Peer: peer, Slots: make(types.Slots)}
	failed := func(state State, index int, item *types.Item, err error) (*types.ReceiveReport, error) {
		fe := fail(ctx, types.RoleReceiver, state, index, item, err)
		collector.IncExchangeFailed(ErrorKind(fe))
		logger.Error("exchange failed", map[string]any{
			"state": string(state),
			"index": index,
			"error": fe.Err.Error(),
		})
		report.Duration = time.Since(start)
		return report, fe
	}

	logger.Info("connected", nil)

	rw := transport.NewDeadlineConn(conn, r.config.IOTimeout)
	dec := wire.NewFrameDecoder(rw, wire.WithMaxPayload(r.config.MaxFrameSize))

	manifest, err := dec.ReadManifest()
	if err != nil {
		return failed(StateConnected, -1, nil, err)
	}
	collector.IncFrameRead()
	if err := manifest.Validate(); err != nil {
		return failed(StateConnected, -1, nil, &wire.Error{Kind: wire.ErrProtocol, Op: "validate manifest", Err: err})
	}

	report.ExchangeID = manifest.ExchangeID
	collector.SetExchangeID(manifest.ExchangeID)
	logger = logger.With(map[string]any{"exchange_id": manifest.ExchangeID})
	logger.Info("manifest received", map[string]any{
		"items":         len(manifest.Items),
		"total_bytes":   manifest.TotalBytes(),
		"expect_result": manifest.ExpectResult,
	})

	if index, err := r.checkManifest(manifest); err != nil {
		var item *types.Item
		if index >= 0 {
			item = &manifest.Items[index]
		}
		return failed(StateConnected, index, item, err)
	}

	for i, declared := range manifest.Items {
		it, err := dec.ReadItem()
		if err != nil {
			return failed(StateReceivingItem, i, &declared, err)
		}
		collector.IncFrameRead()
		if !it.Same(declared) {
			return failed(StateReceivingItem, i, &it, &wire.Error{
				Kind: wire.ErrProtocol,
				Op:   "match descriptor",
				Err:  fmt.Errorf("descriptor %s does not match manifest entry %s", it, declared),
			})
		}

		itemStart := time.Now()
		progress := newProgressTracker(r.config.Options, logger, types.RoleReceiver, i, len(manifest.Items), it)
		progress.start()

		if !r.routes(it.Kind) {
			n, err := wire.CopyExact(io.Discard, rw, it.Size, r.config.ChunkSize, progress.update)
			report.BytesReceived += n
			if err != nil {
				return failed(StateReceivingItem, i, &it, err)
			}
			collector.AddItemSkipped(n)
			report.Items = append(report.Items, types.ItemReport{
				Kind:     it.Kind,
				Name:     it.Name,
				Size:     it.Size,
				Skipped:  true,
				Duration: time.Since(itemStart),
			})
			logger.Warn("skipped item with unknown kind", map[string]any{
				"index": i,
				"kind":  string(it.Kind),
				"name":  it.Name,
				"size":  it.Size,
			})
			continue
		}

		n, err := r.receiveItem(rw, it, progress)
		report.BytesReceived += n
		if err != nil {
			return failed(StateReceivingItem, i, &it, err)
		}

		path, err := r.config.Destination.Validate(it.Name, it.Size)
		if err != nil {
			return failed(StateValidatingItem, i, &it, validationError(err))
		}
		collector.AddItemReceived(n)

		ir := types.ItemReport{
			Kind:     it.Kind,
			Name:     it.Name,
			Size:     it.Size,
			Path:     path,
			Duration: time.Since(itemStart),
		}
		report.Items = append(report.Items, ir)
		report.Slots[it.Kind] = ir
		logger.Info("item received", map[string]any{
			"index":       i,
			"kind":        string(it.Kind),
			"name":        it.Name,
			"size":        it.Size,
			"path":        path,
			"duration_ms": ir.Duration.Milliseconds(),
		})
	}

	if manifest.ExpectResult {
		blob, err := r.compute(ctx, report.Slots)
		if err != nil {
			return failed(StateComputing, -1, nil, err)
		}
		logger.Info("result computed", map[string]any{"bytes": len(blob)})

		if err := wire.NewFrameEncoder(rw).WriteFrame(blob); err != nil {
			return failed(StateSendingResult, -1, nil, err)
		}
		collector.IncFrameWritten()
		collector.AddResultBytes(int64(len(blob)))
		report.ResultSize = len(blob)
		logger.Info("result sent", map[string]any{"bytes": len(blob)})
	}

	report.Duration = time.Since(start)
	collector.IncExchangeCompleted()
	logger.Info("exchange completed", map[string]any{
		"bytes_received": report.BytesReceived,
		"duration_ms":    report.Duration.Milliseconds(),
	})
	return report, nil
}

func (r *Receiver) routes(kind types.Kind) bool {
	return slices.Contains(r.config.Kinds, kind)
}

// checkManifest applies the receiver's routing rules to a validated
// manifest. It returns the offending item index, or -1.
func (r *Receiver) checkManifest(m *types.Manifest) (int, error) {
	slotted := make(map[types.Kind]int, len(m.Items))
	for i, it := range m.Items {
		if !r.routes(it.Kind) {
			if r.config.UnknownKinds == UnknownKindReject {
				return i, fmt.Errorf("%w: %q", ErrUnknownItemKind, it.Kind)
			}
			continue
		}
		if prev, dup := slotted[it.Kind]; dup {
			return i, fmt.Errorf("%w: kind %q already filled by item %d", types.ErrInvalidItem, it.Kind, prev)
		}
		slotted[it.Kind] = i
	}

	if !m.ExpectResult {
		return -1, nil
	}
	if r.config.Trainer == nil {
		return -1, fmt.Errorf("%w: result requested but no trainer is configured", ErrComputationFailed)
	}
	for _, kind := range []types.Kind{types.KindFeatureMatrix, types.KindLabelVector} {
		if _, ok := slotted[kind]; !ok {
			return -1, fmt.Errorf("%w: result requested but manifest has no %q item", ErrComputationFailed, kind)
		}
	}
	return -1, nil
}

// receiveItem streams one payload into a pending destination file and
// commits it. Nothing appears under the final name unless every declared
// byte arrived.
func (r *Receiver) receiveItem(src io.Reader, it types.Item, progress *progressTracker) (int64, error) {
	pending, err := r.config.Destination.Create(it.Name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = pending.Abort() }()

	n, err := wire.CopyExact(pending, src, it.Size, r.config.ChunkSize, progress.update)
	if err != nil {
		return n, err
	}
	if err := pending.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// compute opens the feature and label slots and runs the trainer.
func (r *Receiver) compute(ctx context.Context, slots types.Slots) ([]byte, error) {
	features, _, err := r.config.Destination.Open(slots[types.KindFeatureMatrix].Name)
	if err != nil {
		return nil, fmt.Errorf("%w: open features: %w", ErrComputationFailed, err)
	}
	defer func() { _ = features.Close() }()

	labels, _, err := r.config.Destination.Open(slots[types.KindLabelVector].Name)
	if err != nil {
		return nil, fmt.Errorf("%w: open labels: %w", ErrComputationFailed, err)
	}
	defer func() { _ = labels.Close() }()

	blob, err := r.config.Trainer.Train(ctx, features, labels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputationFailed, err)
	}
	if int64(len(blob)) > r.config.MaxFrameSize {
		return nil, fmt.Errorf("%w: result of %d bytes exceeds max frame size %d",
			ErrComputationFailed, len(blob), r.config.MaxFrameSize)
	}
	return blob, nil
}

// validationError maps storage validation sentinels into the exchange
// taxonomy while keeping the storage error in the chain.
func validationError(err error) error {
	switch {
	case errors.Is(err, storage.ErrEmptyFile):
		return fmt.Errorf("%w: %w", ErrEmptyTransfer, err)
	case errors.Is(err, storage.ErrSizeMismatch):
		return &wire.Error{Kind: wire.ErrSizeMismatch, Op: "validate item", Err: err}
	default:
		return err
	}
}
