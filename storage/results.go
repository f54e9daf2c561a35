package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ferry/types"
)

// DefaultDataset is the dataset name results are stored under.
const DefaultDataset = "ferry"

// DefaultResultName is the file name given to a returned result blob.
const DefaultResultName = "model.bin"

// ResultSink persists a result blob returned by the receiver.
type ResultSink interface {
	// PutResult stores blob for the exchange and returns its storage path.
	PutResult(ctx context.Context, exchangeID string, blob []byte) (string, error)
}

// ResultStore writes result blobs to a Lode Store at Hive-partitioned paths.
type ResultStore struct {
	store   lode.Store
	dataset string
	name    string
	now     func() time.Time
}

// ResultOption configures a ResultStore.
type ResultOption func(*ResultStore)

// WithResultName overrides DefaultResultName.
func WithResultName(name string) ResultOption {
	return func(s *ResultStore) {
		if name != "" {
			s.name = name
		}
	}
}

// WithClock overrides the clock used to derive the day partition.
func WithClock(now func() time.Time) ResultOption {
	return func(s *ResultStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewResultStore creates a result store from a Lode store factory.
// Use lode.NewMemoryFactory() for testing.
func NewResultStore(dataset string, factory lode.StoreFactory, opts ...ResultOption) (*ResultStore, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	if factory == nil {
		return nil, errors.New("result store requires a store factory")
	}
	store, err := factory()
	if err != nil {
		return nil, wrap(err, "init", dataset)
	}

	s := &ResultStore{
		store:   store,
		dataset: dataset,
		name:    DefaultResultName,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := types.ValidateName(s.name); err != nil {
		return nil, fmt.Errorf("result name: %w", err)
	}
	return s, nil
}

// NewFSResultStore creates a result store with filesystem storage under root.
func NewFSResultStore(dataset, root string, opts ...ResultOption) (*ResultStore, error) {
	if root == "" {
		return nil, errors.New("result store path is required")
	}
	return NewResultStore(dataset, lode.NewFSFactory(root), opts...)
}

// NewMemoryResultStore creates an in-process result store. Results are
// lost when the process exits.
func NewMemoryResultStore(dataset string, opts ...ResultOption) (*ResultStore, error) {
	return NewResultStore(dataset, lode.NewMemoryFactory(), opts...)
}

// PutResult implements ResultSink.
func (s *ResultStore) PutResult(ctx context.Context, exchangeID string, blob []byte) (string, error) {
	if exchangeID == "" {
		return "", errors.New("result store: exchange id is required")
	}
	path := ResultPath(s.dataset, DeriveDay(s.now()), exchangeID, s.name)
	if err := s.store.Put(ctx, path, bytes.NewReader(blob)); err != nil {
		return "", wrap(err, "put", path)
	}
	return path, nil
}

// GetResult reads back a stored result blob.
func (s *ResultStore) GetResult(ctx context.Context, path string) ([]byte, error) {
	rc, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, wrap(err, "get", path)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, wrap(err, "read", path)
	}
	return data, nil
}

// ResultPath computes the Hive-partitioned path for a result file.
// Format: datasets/<dataset>/partitions/day=<d>/exchange_id=<id>/files/<name>
func ResultPath(dataset, day, exchangeID, name string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/exchange_id=%s/files/%s",
		dataset, day, exchangeID, name)
}

// DeriveDay returns the UTC day partition value for t.
func DeriveDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Verify ResultStore implements ResultSink.
var _ ResultSink = (*ResultStore)(nil)
