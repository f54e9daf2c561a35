package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/ferry/iox"
)

// Chunk size bounds for CopyExact.
const (
	// DefaultChunkSize is the per-read request size for payload copies.
	DefaultChunkSize = 4096
	// MaxChunkSize caps the copy buffer (8 MiB).
	MaxChunkSize = 8 * 1024 * 1024
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// ProgressFunc receives the running byte total after each chunk.
type ProgressFunc func(done int64)

// CopyExact moves exactly size bytes from src to dst in chunks of at most
// chunkSize bytes. Reads never request bytes past the declared boundary,
// so the stream is left positioned at the next frame.
//
// onProgress, if non-nil, is called after every chunk with the running
// total; the final call reports size. size == 0 performs no I/O.
//
// Errors (all *Error except the argument checks):
//   - ErrTruncated: src ended after Copied < size bytes
//   - ErrSizeMismatch: src reported more bytes than requested
//   - ErrTimeout: an I/O deadline expired
//   - ErrIO: dst or src failed otherwise
func CopyExact(dst io.Writer, src io.Reader, size int64, chunkSize int, onProgress ProgressFunc) (int64, error) {
	if size < 0 {
		return 0, newError(ErrSizeMismatch, "copy", 0, fmt.Errorf("negative size %d", size))
	}
	if chunkSize < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, chunkSize)
	}
	if size == 0 {
		return 0, nil
	}

	bufSize := min(chunkSize, MaxChunkSize)
	if int64(bufSize) > size {
		bufSize = int(size)
	}
	buf := make([]byte, bufSize)

	var total int64
	empty := 0
	for total < size {
		want := len(buf)
		if remaining := size - total; remaining < int64(want) {
			want = int(remaining)
		}

		n, err := src.Read(buf[:want])
		if n < 0 || n > want {
			return total, newError(ErrSizeMismatch, "read chunk", total,
				fmt.Errorf("reader returned %d bytes for a %d byte request", n, want))
		}

		if n > 0 {
			empty = 0
			if _, werr := iox.WriteFull(dst, buf[:n]); werr != nil {
				return total, classify("write chunk", total, werr)
			}
			total += int64(n)
			if onProgress != nil {
				onProgress(total)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if total == size {
					break
				}
				return total, newError(ErrTruncated, "read chunk", total,
					fmt.Errorf("got %d of %d bytes: %w", total, size, io.ErrUnexpectedEOF))
			}
			return total, classify("read chunk", total, err)
		}

		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return total, newError(ErrIO, "read chunk", total, io.ErrNoProgress)
			}
		}
	}

	return total, nil
}

// CheckDrained verifies that src has no bytes left, i.e. that a local
// source did not grow past the size that was declared for it.
func CheckDrained(src io.Reader) error {
	var probe [1]byte
	for range maxEmptyReads {
		n, err := src.Read(probe[:])
		if n > 0 {
			return newError(ErrSizeMismatch, "check drained", 0,
				errors.New("source has more bytes than declared"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classify("check drained", 0, err)
		}
	}
	return newError(ErrIO, "check drained", 0, io.ErrNoProgress)
}
