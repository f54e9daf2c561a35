package transfer

import (
	"fmt"
	"time"

	"github.com/pithecene-io/ferry/log"
	"github.com/pithecene-io/ferry/metrics"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

// Options are shared by both roles.
type Options struct {
	// ChunkSize is the per-read request size for payload copies
	// (default wire.DefaultChunkSize).
	ChunkSize int
	// IOTimeout bounds every individual read and write on the connection.
	// Zero disables the deadline.
	IOTimeout time.Duration
	// MaxFrameSize bounds manifest, descriptor and result frames
	// (default wire.DefaultMaxPayloadSize).
	MaxFrameSize int64
	// Logger receives structured logs. If nil, a nop logger is used.
	Logger *log.Logger
	// Collector records metrics. If nil, no metrics are recorded.
	Collector *metrics.Collector
	// Progress, if set, is called after every payload chunk.
	Progress func(ProgressEvent)
}

// ProgressEvent reports payload progress for one item.
type ProgressEvent struct {
	Role  types.Role
	Index int
	Count int
	Item  types.Item
	Done  int64
}

// Fraction returns Done/Size in [0, 1]. Empty items report 1.
func (e ProgressEvent) Fraction() float64 {
	if e.Item.Size <= 0 {
		return 1
	}
	return float64(e.Done) / float64(e.Item.Size)
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = wire.DefaultChunkSize
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = wire.DefaultMaxPayloadSize
	}
	if o.Logger == nil {
		o.Logger = log.NewNop()
	}
	return o
}

func (o Options) validate() error {
	if o.ChunkSize < 1 || o.ChunkSize > wire.MaxChunkSize {
		return fmt.Errorf("chunk size must be in [1, %d], got %d", wire.MaxChunkSize, o.ChunkSize)
	}
	if o.IOTimeout < 0 {
		return fmt.Errorf("io timeout must be >= 0, got %s", o.IOTimeout)
	}
	if o.MaxFrameSize < 1 {
		return fmt.Errorf("max frame size must be >= 1, got %d", o.MaxFrameSize)
	}
	return nil
}

// progressTracker forwards chunk progress to the Progress callback and
// logs at debug level each time another tenth of the item has moved.
type progressTracker struct {
	opts   Options
	role   types.Role
	index  int
	count  int
	item   types.Item
	logger *log.Logger
	decile int64
}

func newProgressTracker(opts Options, logger *log.Logger, role types.Role, index, count int, item types.Item) *progressTracker {
	return &progressTracker{opts: opts, role: role, index: index, count: count, item: item, logger: logger}
}

func (p *progressTracker) update(done int64) {
	if p.opts.Progress != nil {
		p.opts.Progress(ProgressEvent{Role: p.role, Index: p.index, Count: p.count, Item: p.item, Done: done})
	}
	if p.item.Size == 0 {
		return
	}
	if d := done * 10 / p.item.Size; d > p.decile {
		p.decile = d
		p.logger.Debug("item progress", map[string]any{
			"index":   p.index,
			"name":    p.item.Name,
			"done":    done,
			"size":    p.item.Size,
			"percent": d * 10,
		})
	}
}

// start emits a zero-progress event so observers see every item,
// including empty ones that never move a chunk.
func (p *progressTracker) start() {
	if p.opts.Progress != nil {
		p.opts.Progress(ProgressEvent{Role: p.role, Index: p.index, Count: p.count, Item: p.item})
	}
}
