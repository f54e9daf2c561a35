package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pithecene-io/ferry/types"
)

// Source resolves item names to readable local data.
type Source interface {
	// Open returns a reader over the named item and its exact size.
	Open(name string) (io.ReadCloser, int64, error)
}

// Destination creates, validates and reopens received items.
type Destination interface {
	Source
	// Create starts writing the named item. Nothing is visible under the
	// final name until Pending.Commit succeeds.
	Create(name string) (*Pending, error)
	// Validate checks a committed item against its declared size and
	// returns its path.
	Validate(name string, declared int64) (string, error)
}

// Dir is a local directory acting as Source (sender) or Destination
// (receiver). Names are validated with types.ValidateName, so no item
// can resolve outside the directory.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root. The directory is not created.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("storage directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory %q: %w", root, err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the absolute path for name.
func (d *Dir) Path(name string) (string, error) {
	if err := types.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, name), nil
}

// Ensure creates the directory if it does not exist.
func (d *Dir) Ensure() error {
	return wrap(os.MkdirAll(d.root, 0o755), "mkdir", d.root)
}

// Reset removes the directory and everything under it, then recreates it
// empty. Filesystem roots are refused.
func (d *Dir) Reset() error {
	if d.root == filepath.Dir(d.root) {
		return fmt.Errorf("refusing to reset filesystem root %q", d.root)
	}
	if err := os.RemoveAll(d.root); err != nil {
		return wrap(err, "reset", d.root)
	}
	return d.Ensure()
}

// Open implements Source.
func (d *Dir) Open(name string) (io.ReadCloser, int64, error) {
	path, err := d.Path(name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, wrap(err, "open", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, wrap(err, "stat", path)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, NewStorageError(ErrNotRegular, "open", path, nil)
	}
	return f, info.Size(), nil
}

// Create implements Destination. Bytes go to a hidden temp file in the
// same directory, renamed into place on Commit.
func (d *Dir) Create(name string) (*Pending, error) {
	final, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(d.root, "."+name+".partial-*")
	if err != nil {
		return nil, wrap(err, "create", final)
	}
	return &Pending{file: f, final: final}, nil
}

// Validate implements Destination. The item must exist, be a regular
// file, match the declared size and be non-empty unless declared empty.
func (d *Dir) Validate(name string, declared int64) (string, error) {
	path, err := d.Path(name)
	if err != nil {
		return "", err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return "", wrap(err, "validate", path)
	}
	if info.IsDir() {
		return "", NewStorageError(ErrNotRegular, "validate", path, errors.New("is a directory"))
	}
	if !info.Mode().IsRegular() {
		return "", NewStorageError(ErrNotRegular, "validate", path, fmt.Errorf("mode %s", info.Mode().Type()))
	}
	if info.Size() == 0 && declared != 0 {
		return "", NewStorageError(ErrEmptyFile, "validate", path, fmt.Errorf("declared %d bytes", declared))
	}
	if info.Size() != declared {
		return "", NewStorageError(ErrSizeMismatch, "validate", path,
			fmt.Errorf("stored %d bytes, declared %d", info.Size(), declared))
	}
	return path, nil
}

// Pending is an item being written. Exactly one of Commit or Abort takes
// effect; Abort after Commit is a no-op, so it is safe to defer.
type Pending struct {
	file    *os.File
	final   string
	written int64
	done    bool
}

// Write appends to the temp file.
func (p *Pending) Write(b []byte) (int, error) {
	n, err := p.file.Write(b)
	p.written += int64(n)
	if err != nil {
		return n, wrap(err, "write", p.final)
	}
	return n, nil
}

// Written returns the number of bytes written so far.
func (p *Pending) Written() int64 {
	return p.written
}

// Path returns the final path the item will be committed to.
func (p *Pending) Path() string {
	return p.final
}

// Commit flushes the temp file and renames it to the final name.
func (p *Pending) Commit() error {
	if p.done {
		return fmt.Errorf("commit %s: already finished", p.final)
	}
	p.done = true

	tmp := p.file.Name()
	if err := p.file.Sync(); err != nil {
		_ = p.file.Close()
		_ = os.Remove(tmp)
		return wrap(err, "sync", p.final)
	}
	if err := p.file.Close(); err != nil {
		_ = os.Remove(tmp)
		return wrap(err, "close", p.final)
	}
	if err := os.Rename(tmp, p.final); err != nil {
		_ = os.Remove(tmp)
		return wrap(err, "rename", p.final)
	}
	return nil
}

// Abort discards the temp file.
func (p *Pending) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	_ = p.file.Close()
	if err := os.Remove(p.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrap(err, "abort", p.final)
	}
	return nil
}

// Verify Dir implements Source and Destination.
var (
	_ Source      = (*Dir)(nil)
	_ Destination = (*Dir)(nil)
)
