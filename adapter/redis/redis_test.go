package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/ferry/adapter"
)

func testEvent() *adapter.ExchangeCompletedEvent {
	return &adapter.ExchangeCompletedEvent{
		ContractVersion: "0.3.0",
		EventType:       adapter.EventTypeExchangeCompleted,
		ExchangeID:      "ex-001",
		Role:            "sender",
		Outcome:         "success",
		Peer:            "127.0.0.1:50122",
		ItemCount:       2,
		Bytes:           1_000_500,
		ResultBytes:     42,
		ResultPath:      "datasets/ferry/partitions/day=2026-10-14/exchange_id=ex-001/files/model.bin",
		Timestamp:       "2026-10-14T12:00:00Z",
		DurationMs:      1500,
	}
}

// subscribe listens on channel and forwards one message. miniredis
// delivers pub/sub synchronously, so the reader must be running before
// Publish is called.
func subscribe(mr *miniredis.Miniredis, channel string) <-chan miniredis.PubsubMessage {
	sub := mr.NewSubscriber()
	sub.Subscribe(channel)
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish_Channels(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{"default", "", DefaultChannel},
		{"custom", "custom:notifications", "custom:notifications"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: tt.channel})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = a.Close() }()

			ch := subscribe(mr, tt.want)
			if err := a.Publish(t.Context(), testEvent()); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}

			msg := waitMessage(t, ch)
			if msg.Channel != tt.want {
				t.Errorf("channel = %q, want %q", msg.Channel, tt.want)
			}
			var got adapter.ExchangeCompletedEvent
			if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
				t.Fatalf("unmarshal message: %v", err)
			}
			if want := *testEvent(); got != want {
				t.Errorf("event = %+v, want %+v", got, want)
			}
		})
	}
}

func TestPublish_RecoversAfterOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	a, err := New(Config{URL: "redis://" + addr, Retries: 3, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = a.Close() }()

	// The server is back before the first backoff elapses.
	time.AfterFunc(100*time.Millisecond, func() { _ = mr.StartAddr(addr) })

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("Publish() error = %v, want recovery once the server returns", err)
	}
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		timeout time.Duration
		wantCtx error
	}{
		{
			name: "exhausts retries",
			cfg:  Config{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond},
		},
		{
			name:    "context deadline",
			cfg:     Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second},
			timeout: 100 * time.Millisecond,
			wantCtx: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer func() { _ = a.Close() }()

			ctx := t.Context()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			err = a.Publish(ctx, testEvent())
			if err == nil {
				t.Fatal("Publish() error = nil, want failure")
			}
			if tt.wantCtx != nil && !errors.Is(err, tt.wantCtx) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantCtx)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     bool
		wantChannel string
		wantTimeout time.Duration
	}{
		{"missing url", Config{}, true, "", 0},
		{"invalid url", Config{URL: "not-a-redis-url"}, true, "", 0},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}, true, "", 0},
		{"defaults", Config{URL: "redis://localhost:6379"}, false, DefaultChannel, DefaultTimeout},
		{
			"explicit",
			Config{URL: "redis://localhost:6379/2", Channel: "ops", Timeout: time.Second, Retries: 1},
			false, "ops", time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer func() { _ = a.Close() }()
			if a.config.Channel != tt.wantChannel {
				t.Errorf("Channel = %q, want %q", a.config.Channel, tt.wantChannel)
			}
			if a.config.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", a.config.Timeout, tt.wantTimeout)
			}
		})
	}
}

func TestPublish_AfterCloseIsPermanent(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	start := time.Now()
	err = a.Publish(t.Context(), testEvent())
	if err == nil {
		t.Fatal("Publish() error = nil after Close")
	}
	if elapsed := time.Since(start); elapsed >= adapter.BaseBackoff {
		t.Errorf("Publish() after Close took %v, want no retry backoff", elapsed)
	}
}
