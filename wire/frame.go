// Package wire implements the ferry framing and streaming primitives.
//
// Every frame is an 8-byte little-endian unsigned length followed by that
// many payload bytes. File payloads follow their descriptor frame as raw
// bytes and are moved with CopyExact instead of being re-framed.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pithecene-io/ferry/iox"
)

// Frame size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 8
	// DefaultMaxPayloadSize is the largest payload a decoder accepts
	// unless configured otherwise (64 MiB).
	DefaultMaxPayloadSize = 64 * 1024 * 1024
)

// FrameDecoder decodes length-prefixed frames from a stream.
type FrameDecoder struct {
	reader     io.Reader
	maxPayload uint64
	lengthBuf  [LengthPrefixSize]byte
}

// DecoderOption configures a FrameDecoder.
type DecoderOption func(*FrameDecoder)

// WithMaxPayload overrides DefaultMaxPayloadSize. Values below 1 are ignored.
func WithMaxPayload(n int64) DecoderOption {
	return func(d *FrameDecoder) {
		if n > 0 {
			d.maxPayload = uint64(n)
		}
	}
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader, opts ...DecoderOption) *FrameDecoder {
	d := &FrameDecoder{reader: r, maxPayload: DefaultMaxPayloadSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxPayload returns the configured payload limit.
func (d *FrameDecoder) MaxPayload() int64 {
	return int64(d.maxPayload)
}

// ReadFrame reads a single frame and returns its exact payload.
//
// Errors (all *Error):
//   - ErrTruncated: stream ended before the prefix or payload completed;
//     errors.Is(err, io.EOF) holds when it ended cleanly on a frame boundary
//   - ErrProtocol: declared length exceeds the payload limit (nothing is
//     allocated or read past the prefix)
//   - ErrTimeout: an I/O deadline expired
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(d.reader, d.lengthBuf[:]); err != nil {
		return nil, classify("read length prefix", 0, err)
	}

	size := binary.LittleEndian.Uint64(d.lengthBuf[:])
	if size > d.maxPayload {
		return nil, newError(ErrProtocol, "read length prefix", 0,
			fmt.Errorf("payload size %d exceeds maximum %d", size, d.maxPayload))
	}

	payload := make([]byte, size)
	if n, err := io.ReadFull(d.reader, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, classify("read payload", int64(n), err)
	}
	return payload, nil
}

// FrameEncoder writes length-prefixed frames to a stream.
type FrameEncoder struct {
	writer    io.Writer
	lengthBuf [LengthPrefixSize]byte
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame writes the length prefix and the full payload.
// Short writes from the underlying stream are retried until every byte
// is accepted or an error occurs.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	binary.LittleEndian.PutUint64(e.lengthBuf[:], uint64(len(payload)))
	if _, err := iox.WriteFull(e.writer, e.lengthBuf[:]); err != nil {
		return classify("write length prefix", 0, err)
	}
	if n, err := iox.WriteFull(e.writer, payload); err != nil {
		return classify("write payload", int64(n), err)
	}
	return nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	return NewFrameEncoder(w).WriteFrame(payload)
}

// ReadFrame reads one frame from r using DefaultMaxPayloadSize.
func ReadFrame(r io.Reader) ([]byte, error) {
	return NewFrameDecoder(r).ReadFrame()
}
