// Package metrics provides per-exchange metrics collection.
//
// The Collector accumulates counters during a single exchange. It is a leaf
// package with no internal dependencies; the transfer roles record into it
// live and the CLI exports a Snapshot when the exchange ends.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Exchange lifecycle
	ExchangesStarted   int64
	ExchangesCompleted int64
	ExchangesFailed    int64
	ErrorsByKind       map[string]int64

	// Items
	ItemsSent     int64
	ItemsReceived int64
	ItemsSkipped  int64

	// Bytes
	PayloadBytesSent     int64
	PayloadBytesReceived int64
	ResultBytes          int64

	// Frames
	FramesWritten int64
	FramesRead    int64

	// Storage
	ResultStoreSuccess int64
	ResultStoreFailure int64

	// Dimensions (informational, set at construction)
	Role           string
	StorageBackend string
	ExchangeID     string
}

// Collector accumulates metrics during a single exchange.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	exchangesStarted   int64
	exchangesCompleted int64
	exchangesFailed    int64
	errorsByKind       map[string]int64

	itemsSent     int64
	itemsReceived int64
	itemsSkipped  int64

	payloadBytesSent     int64
	payloadBytesReceived int64
	resultBytes          int64

	framesWritten int64
	framesRead    int64

	resultStoreSuccess int64
	resultStoreFailure int64

	role           string
	storageBackend string
	exchangeID     string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend may be empty when no result store is configured.
func NewCollector(role, storageBackend string) *Collector {
	return &Collector{
		errorsByKind:   make(map[string]int64),
		role:           role,
		storageBackend: storageBackend,
	}
}

// SetExchangeID records the exchange identity once the manifest is known.
func (c *Collector) SetExchangeID(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.exchangeID = id
	c.mu.Unlock()
}

// --- Exchange lifecycle ---

// IncExchangeStarted records an exchange start.
func (c *Collector) IncExchangeStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.exchangesStarted++
	c.mu.Unlock()
}

// IncExchangeCompleted records a successful exchange.
func (c *Collector) IncExchangeCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.exchangesCompleted++
	c.mu.Unlock()
}

// IncExchangeFailed records a failed exchange, keyed by error kind
// (e.g. "truncated", "timeout", "unknown_kind").
func (c *Collector) IncExchangeFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.exchangesFailed++
	c.errorsByKind[kind]++
	c.mu.Unlock()
}

// --- Items ---

// AddItemSent records one item streamed to the peer.
func (c *Collector) AddItemSent(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsSent++
	c.payloadBytesSent += bytes
	c.mu.Unlock()
}

// AddItemReceived records one item committed to local storage.
func (c *Collector) AddItemReceived(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsReceived++
	c.payloadBytesReceived += bytes
	c.mu.Unlock()
}

// AddItemSkipped records one item drained under the skip policy.
// Drained bytes still count as received payload.
func (c *Collector) AddItemSkipped(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.itemsSkipped++
	c.payloadBytesReceived += bytes
	c.mu.Unlock()
}

// AddResultBytes records the size of the result blob sent or received.
func (c *Collector) AddResultBytes(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resultBytes += n
	c.mu.Unlock()
}

// --- Frames ---

// IncFrameWritten records one length-prefixed frame written.
func (c *Collector) IncFrameWritten() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesWritten++
	c.mu.Unlock()
}

// IncFrameRead records one length-prefixed frame read.
func (c *Collector) IncFrameRead() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesRead++
	c.mu.Unlock()
}

// --- Storage ---

// IncResultStoreSuccess records a result blob persisted to the result store.
func (c *Collector) IncResultStoreSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resultStoreSuccess++
	c.mu.Unlock()
}

// IncResultStoreFailure records a failed result store write.
func (c *Collector) IncResultStoreFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resultStoreFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := make(map[string]int64, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		errs[k] = v
	}

	return Snapshot{
		ExchangesStarted:   c.exchangesStarted,
		ExchangesCompleted: c.exchangesCompleted,
		ExchangesFailed:    c.exchangesFailed,
		ErrorsByKind:       errs,

		ItemsSent:     c.itemsSent,
		ItemsReceived: c.itemsReceived,
		ItemsSkipped:  c.itemsSkipped,

		PayloadBytesSent:     c.payloadBytesSent,
		PayloadBytesReceived: c.payloadBytesReceived,
		ResultBytes:          c.resultBytes,

		FramesWritten: c.framesWritten,
		FramesRead:    c.framesRead,

		ResultStoreSuccess: c.resultStoreSuccess,
		ResultStoreFailure: c.resultStoreFailure,

		Role:           c.role,
		StorageBackend: c.storageBackend,
		ExchangeID:     c.exchangeID,
	}
}
