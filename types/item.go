// Package types defines the domain types shared by the ferry wire protocol,
// the transfer roles and the CLI.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the semantic role of a transferred item.
// The receiver routes received bytes into slots keyed by Kind.
type Kind string

// Item kinds understood by the default receiver.
const (
	KindFeatureMatrix Kind = "feature-matrix"
	KindLabelVector   Kind = "label-vector"
)

// KnownKinds returns the kinds accepted by a receiver with default routing.
func KnownKinds() []Kind {
	return []Kind{KindFeatureMatrix, KindLabelVector}
}

// ParseKind parses a kind tag. Empty tags are rejected; unknown but
// well-formed tags are returned as-is so that routing policy can decide.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty kind", ErrInvalidItem)
	}
	if len(s) > MaxKindLength {
		return "", fmt.Errorf("%w: kind longer than %d bytes", ErrInvalidItem, MaxKindLength)
	}
	return Kind(s), nil
}

// Limits on descriptor fields.
const (
	// MaxKindLength bounds the kind tag.
	MaxKindLength = 64
	// MaxNameLength bounds the storage name.
	MaxNameLength = 255
)

// ErrInvalidItem is returned when an item descriptor violates the
// name or size rules.
var ErrInvalidItem = errors.New("invalid item")

// ItemFrameType is the type discriminant for item descriptor frames.
const ItemFrameType = "item"

// Item describes one file about to be streamed.
// It is serialized into the metadata frame that precedes the payload.
type Item struct {
	// Type is always "item" on the wire.
	Type string `msgpack:"type" json:"-" yaml:"-"`
	// Kind identifies the semantic role of the payload.
	Kind Kind `msgpack:"kind" json:"kind" yaml:"kind"`
	// Name is the storage name used to build the destination path.
	Name string `msgpack:"name" json:"name" yaml:"name"`
	// Size is the exact byte length of the payload that follows.
	Size int64 `msgpack:"size" json:"size" yaml:"size"`
}

// NewItem builds a descriptor with the wire discriminant set.
func NewItem(kind Kind, name string, size int64) Item {
	return Item{Type: ItemFrameType, Kind: kind, Name: name, Size: size}
}

// Validate checks the name and size rules.
func (it Item) Validate() error {
	if _, err := ParseKind(string(it.Kind)); err != nil {
		return err
	}
	if err := ValidateName(it.Name); err != nil {
		return err
	}
	if it.Size < 0 {
		return fmt.Errorf("%w: negative size %d for %q", ErrInvalidItem, it.Size, it.Name)
	}
	return nil
}

// Same reports whether two descriptors describe the same transfer,
// ignoring the wire discriminant.
func (it Item) Same(other Item) bool {
	return it.Kind == other.Kind && it.Name == other.Name && it.Size == other.Size
}

func (it Item) String() string {
	return fmt.Sprintf("%s:%s(%d bytes)", it.Kind, it.Name, it.Size)
}

// ValidateName rejects names that are empty, too long, or that could
// escape the destination directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidItem)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidItem, MaxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: name %q is a path traversal segment", ErrInvalidItem, name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidItem, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: name contains NUL", ErrInvalidItem)
	case strings.HasPrefix(name, "."):
		// Hidden names are reserved for in-flight temp files.
		return fmt.Errorf("%w: name %q must not start with '.'", ErrInvalidItem, name)
	}
	return nil
}
