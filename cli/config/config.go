package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

// Config represents a ferry.yaml configuration file.
// All values are optional and act as defaults for ferry command flags.
// CLI flags always override config values.
type Config struct {
	Listen       string         `yaml:"listen"`
	Connect      string         `yaml:"connect"`
	ChunkSize    int            `yaml:"chunk_size"`
	IOTimeout    Duration       `yaml:"io_timeout"`
	MaxFrameSize int64          `yaml:"max_frame_size"`
	Sender       SenderConfig   `yaml:"sender"`
	Receiver     ReceiverConfig `yaml:"receiver"`
	Storage      StorageConfig  `yaml:"storage"`
	Adapter      AdapterConfig  `yaml:"adapter"`
}

// SenderConfig holds sender defaults from the config file.
type SenderConfig struct {
	DataDir      string       `yaml:"data_dir"`
	Items        []ItemConfig `yaml:"items"`
	ExpectResult bool         `yaml:"expect_result"`
}

// ItemConfig selects one item to send.
type ItemConfig struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

// ReceiverConfig holds receiver defaults from the config file.
type ReceiverConfig struct {
	DataDir      string   `yaml:"data_dir"`
	Reset        bool     `yaml:"reset"`
	UnknownKinds string   `yaml:"unknown_kinds"`
	Kinds        []string `yaml:"kinds,omitempty"`
	Train        bool     `yaml:"train"`
	DialRetries  *int     `yaml:"dial_retries,omitempty"`
}

// StorageConfig holds result storage defaults from the config file.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Storage backends.
const (
	BackendNone   = ""
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks values that can be judged without flags.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.ChunkSize < 0 || c.ChunkSize > wire.MaxChunkSize {
		errs = append(errs, fmt.Errorf("chunk_size must be in [0, %d] (0 selects the default), got %d", wire.MaxChunkSize, c.ChunkSize))
	}
	if c.MaxFrameSize < 0 {
		errs = append(errs, fmt.Errorf("max_frame_size must be >= 0, got %d", c.MaxFrameSize))
	}
	if c.IOTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("io_timeout must be >= 0, got %s", c.IOTimeout.Duration))
	}

	for i, it := range c.Sender.Items {
		if _, err := types.ParseKind(it.Kind); err != nil {
			errs = append(errs, fmt.Errorf("sender.items[%d]: %w", i, err))
		}
		if err := types.ValidateName(it.Name); err != nil {
			errs = append(errs, fmt.Errorf("sender.items[%d]: %w", i, err))
		}
	}

	if _, err := transfer.ParseUnknownKindPolicy(c.Receiver.UnknownKinds); err != nil {
		errs = append(errs, fmt.Errorf("receiver.unknown_kinds: %w", err))
	}
	for i, k := range c.Receiver.Kinds {
		if _, err := types.ParseKind(k); err != nil {
			errs = append(errs, fmt.Errorf("receiver.kinds[%d]: %w", i, err))
		}
	}
	if c.Receiver.DialRetries != nil && *c.Receiver.DialRetries < 0 {
		errs = append(errs, fmt.Errorf("receiver.dial_retries must be >= 0, got %d", *c.Receiver.DialRetries))
	}

	switch c.Storage.Backend {
	case BackendNone, BackendMemory:
	case BackendFS, BackendS3:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for backend %q", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs, s3 or memory, got %q", c.Storage.Backend))
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for adapter %q", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}

	return errors.Join(errs...)
}
