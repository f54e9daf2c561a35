//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// ManifestFrameType is the type discriminant for the manifest frame.
const ManifestFrameType = "manifest"

// MaxManifestItems bounds the number of items one exchange may declare.
const MaxManifestItems = 64

// Manifest is the first frame of every exchange. It declares the ordered
// item sequence and whether a result frame travels back afterwards.
type Manifest struct {
	// Type is always "manifest" on the wire.
	Type string `msgpack:"type"`
	// ContractVersion is the sender's Version.
	ContractVersion string `msgpack:"contract_version"`
	// ExchangeID identifies this exchange in logs, reports and storage.
	ExchangeID string `msgpack:"exchange_id"`
	// Items lists descriptors in transmission order.
	Items []Item `msgpack:"items"`
	// ExpectResult is true when the sender awaits a result frame.
	ExpectResult bool `msgpack:"expect_result"`
}

// NewManifest builds a manifest with the wire discriminant and version set.
func NewManifest(exchangeID string, items []Item, expectResult bool) *Manifest {
	return &Manifest{
		Type:            ManifestFrameType,
		ContractVersion: Version,
		ExchangeID:      exchangeID,
		Items:           items,
		ExpectResult:    expectResult,
	}
}

// Validate checks the manifest shape and every declared item.
// Names must be unique so no item can overwrite another at the receiver.
func (m *Manifest) Validate() error {
	if m.Type != ManifestFrameType {
		return fmt.Errorf("unexpected frame type %q, want %q", m.Type, ManifestFrameType)
	}
	if major(m.ContractVersion) != major(Version) {
		return fmt.Errorf("incompatible contract version %q (local %s)", m.ContractVersion, Version)
	}
	if m.ExchangeID == "" {
		return fmt.Errorf("manifest missing exchange_id")
	}
	if len(m.Items) > MaxManifestItems {
		return fmt.Errorf("manifest declares %d items, maximum %d", len(m.Items), MaxManifestItems)
	}

	seen := make(map[string]struct{}, len(m.Items))
	for i, it := range m.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("manifest item %d: %w", i, err)
		}
		if _, dup := seen[it.Name]; dup {
			return fmt.Errorf("manifest item %d: %w: duplicate name %q", i, ErrInvalidItem, it.Name)
		}
		seen[it.Name] = struct{}{}
	}
	return nil
}

// TotalBytes sums the declared payload sizes.
func (m *Manifest) TotalBytes() int64 {
	var total int64
	for _, it := range m.Items {
		total += it.Size
	}
	return total
}

func major(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}
