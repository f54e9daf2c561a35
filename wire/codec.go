package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/ferry/types"
)

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// EncodeManifest encodes a manifest as a msgpack payload.
func EncodeManifest(m *types.Manifest) ([]byte, error) {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return payload, nil
}

// DecodeManifest decodes a manifest payload.
// Payloads of another frame type are an ErrProtocol.
func DecodeManifest(payload []byte) (*types.Manifest, error) {
	if err := expectType(payload, types.ManifestFrameType, "decode manifest"); err != nil {
		return nil, err
	}
	var m types.Manifest
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return nil, newError(ErrProtocol, "decode manifest", 0, err)
	}
	return &m, nil
}

// EncodeItem encodes an item descriptor as a msgpack payload.
// The wire discriminant is set if the caller left it empty.
func EncodeItem(it types.Item) ([]byte, error) {
	if it.Type == "" {
		it.Type = types.ItemFrameType
	}
	payload, err := msgpack.Marshal(&it)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return payload, nil
}

// DecodeItem decodes an item descriptor payload.
// Payloads of another frame type are an ErrProtocol.
func DecodeItem(payload []byte) (types.Item, error) {
	if err := expectType(payload, types.ItemFrameType, "decode item"); err != nil {
		return types.Item{}, err
	}
	var it types.Item
	if err := msgpack.Unmarshal(payload, &it); err != nil {
		return types.Item{}, newError(ErrProtocol, "decode item", 0, err)
	}
	return it, nil
}

func expectType(payload []byte, want, op string) error {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return newError(ErrProtocol, op, 0, fmt.Errorf("failed to decode frame type: %w", err))
	}
	if probe.Type != want {
		return newError(ErrProtocol, op, 0, fmt.Errorf("frame type %q, want %q", probe.Type, want))
	}
	return nil
}

// WriteManifest encodes and frames a manifest.
func (e *FrameEncoder) WriteManifest(m *types.Manifest) error {
	payload, err := EncodeManifest(m)
	if err != nil {
		return err
	}
	return e.WriteFrame(payload)
}

// WriteItem encodes and frames an item descriptor.
func (e *FrameEncoder) WriteItem(it types.Item) error {
	payload, err := EncodeItem(it)
	if err != nil {
		return err
	}
	return e.WriteFrame(payload)
}

// ReadManifest reads and decodes a manifest frame.
func (d *FrameDecoder) ReadManifest() (*types.Manifest, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeManifest(payload)
}

// ReadItem reads and decodes an item descriptor frame.
func (d *FrameDecoder) ReadItem() (types.Item, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return types.Item{}, err
	}
	return DecodeItem(payload)
}
