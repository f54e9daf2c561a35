package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

func TestAcceptOne_ClosesListener(t *testing.T) {
	ln, err := Listen(t.Context(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()

	done := make(chan net.Conn, 1)
	go func() {
		conn, err := Dial(t.Context(), addr, DialConfig{Timeout: time.Second})
		if err != nil {
			t.Errorf("Dial failed: %v", err)
		}
		done <- conn
	}()

	conn, err := AcceptOne(t.Context(), ln)
	if err != nil {
		t.Fatalf("AcceptOne failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	client := <-done
	if client != nil {
		defer func() { _ = client.Close() }()
	}

	if _, err := ln.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("second Accept err = %v, want net.ErrClosed", err)
	}
}

func TestAcceptOne_Cancel(t *testing.T) {
	ln, err := Listen(t.Context(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err = AcceptOne(ctx, ln)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDial_RetriesUntilListening(t *testing.T) {
	// Reserve a port, release it, then start listening after a delay.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := probe.Addr().String()
	_ = probe.Close()

	accepted := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			t.Errorf("delayed listen: %v", err)
			close(accepted)
			return
		}
		defer func() { _ = ln.Close() }()
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
		close(accepted)
	}()

	conn, err := Dial(t.Context(), addr, DialConfig{Retries: 8, Backoff: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	_ = conn.Close()
	<-accepted
}

func TestDial_NoRetries(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := probe.Addr().String()
	_ = probe.Close()

	if _, err := Dial(t.Context(), addr, DialConfig{}); err == nil {
		t.Fatal("expected dial error with nothing listening")
	}
	if _, err := Dial(t.Context(), addr, DialConfig{Retries: -1}); err == nil {
		t.Fatal("expected error for negative retries")
	}
}

func TestDeadlineConn_ReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	conn := NewDeadlineConn(client, 30*time.Millisecond)
	if dc, ok := conn.(*DeadlineConn); !ok || dc.Timeout() != 30*time.Millisecond {
		t.Fatalf("NewDeadlineConn returned %T", conn)
	}

	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("err = %v, want os.ErrDeadlineExceeded", err)
	}
}

func TestDeadlineConn_DeadlineRefreshedPerCall(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	conn := NewDeadlineConn(client, 200*time.Millisecond)

	go func() {
		for range 3 {
			time.Sleep(100 * time.Millisecond)
			if _, err := server.Write([]byte{1}); err != nil {
				return
			}
		}
	}()

	// Total wait exceeds a single deadline, each call does not.
	buf := make([]byte, 1)
	for i := range 3 {
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
	}
}

func TestNewDeadlineConn_ZeroTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	if got := NewDeadlineConn(client, 0); got != client {
		t.Error("zero timeout should return the connection unchanged")
	}
}
