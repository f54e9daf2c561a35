package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"os permission", &fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}, ErrPermissionDenied},
		{"os not exist", &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, ErrNotFound},
		{"enospc", &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, ErrDiskFull},
		{"AccessDenied response", errors.New("AccessDenied: you do not have access"), ErrAccessDenied},
		{"HTTP 403", errors.New("received status 403"), ErrAccessDenied},
		{"NoSuchKey", errors.New("NoSuchKey: the key does not exist"), ErrNotFound},
		{"SlowDown", errors.New("SlowDown: please reduce your request rate"), ErrThrottled},
		{"expired token", errors.New("ExpiredToken: the token has expired"), ErrAuth},
		{"deadline", errors.New("context deadline exceeded"), ErrTimeout},
		{"refused", errors.New("dial tcp 127.0.0.1:9000: connection refused"), ErrNetwork},
		{"unknown", errors.New("something odd"), errUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			if got != tt.wantKind {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestStorageError_Chain(t *testing.T) {
	inner := &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}
	err := fmt.Errorf("receive: %w", wrap(inner, "open", "/x"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = false")
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Error("underlying errno lost from chain")
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatal("errors.As(*StorageError) = false")
	}
	if storageErr.Op != "open" || storageErr.Path != "/x" {
		t.Errorf("StorageError = %+v", storageErr)
	}
}

func TestWrap_Idempotent(t *testing.T) {
	first := wrap(errors.New("no space left on device"), "write", "/a")
	second := wrap(first, "commit", "/b")
	if second != first {
		t.Error("wrap should not re-wrap a StorageError")
	}
	if wrap(nil, "x", "y") != nil {
		t.Error("wrap(nil) should be nil")
	}
}
