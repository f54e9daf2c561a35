package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/cli/config"
	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// Precedence for every setting: explicit flag, then ferry.yaml, then the
// flag default.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveInt64(c *cli.Context, name string, cfgVal int64) int64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int64(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// resolveIntPtr distinguishes an explicit zero in ferry.yaml from an
// omitted key.
func resolveIntPtr(c *cli.Context, name string, cfgVal *int) int {
	if c.IsSet(name) || cfgVal == nil {
		return c.Int(name)
	}
	return *cfgVal
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// loadConfig loads --config when given. A nil config means none was given.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// transferSettings are the resolved options shared by both roles.
type transferSettings struct {
	chunkSize    int
	ioTimeout    time.Duration
	maxFrameSize int64
	metricsFile  string
}

func resolveTransfer(c *cli.Context, cfg *config.Config) transferSettings {
	return transferSettings{
		chunkSize:    resolveInt(c, "chunk-size", configVal(cfg, func(c *config.Config) int { return c.ChunkSize })),
		ioTimeout:    resolveDuration(c, "io-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.IOTimeout.Duration })),
		maxFrameSize: resolveInt64(c, "max-frame-size", configVal(cfg, func(c *config.Config) int64 { return c.MaxFrameSize })),
		metricsFile:  c.String("metrics-file"),
	}
}

// resolveItems reads --item flags, falling back to sender.items.
func resolveItems(c *cli.Context, cfg *config.Config) ([]transfer.ItemSpec, error) {
	var items []transfer.ItemSpec
	if c.IsSet("item") {
		for _, raw := range c.StringSlice("item") {
			spec, err := parseItemFlag(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, spec)
		}
		return items, nil
	}
	for _, it := range configVal(cfg, func(c *config.Config) []config.ItemConfig { return c.Sender.Items }) {
		items = append(items, transfer.ItemSpec{Kind: types.Kind(it.Kind), Name: it.Name})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one --item kind=name is required")
	}
	return items, nil
}

func parseItemFlag(raw string) (transfer.ItemSpec, error) {
	kind, name, ok := strings.Cut(raw, "=")
	if !ok {
		return transfer.ItemSpec{}, fmt.Errorf("invalid --item %q: want kind=name", raw)
	}
	k, err := types.ParseKind(strings.TrimSpace(kind))
	if err != nil {
		return transfer.ItemSpec{}, fmt.Errorf("invalid --item %q: %w", raw, err)
	}
	name = strings.TrimSpace(name)
	if err := types.ValidateName(name); err != nil {
		return transfer.ItemSpec{}, fmt.Errorf("invalid --item %q: %w", raw, err)
	}
	return transfer.ItemSpec{Kind: k, Name: name}, nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: want Key=Value", h)
		}
		headers[strings.TrimSpace(k)] = v
	}
	return headers, nil
}

// resolveStorage merges storage flags over the storage section.
func resolveStorage(c *cli.Context, cfg *config.Config) config.StorageConfig {
	s := configVal(cfg, func(c *config.Config) config.StorageConfig { return c.Storage })
	return config.StorageConfig{
		Backend:     resolveString(c, "storage-backend", s.Backend),
		Path:        resolveString(c, "storage-path", s.Path),
		Dataset:     resolveString(c, "storage-dataset", s.Dataset),
		Region:      resolveString(c, "storage-region", s.Region),
		Endpoint:    resolveString(c, "storage-endpoint", s.Endpoint),
		S3PathStyle: resolveBool(c, "storage-s3-path-style", s.S3PathStyle),
	}
}

// resolveAdapter merges adapter flags over the adapter section.
func resolveAdapter(c *cli.Context, cfg *config.Config) (config.AdapterConfig, error) {
	a := configVal(cfg, func(c *config.Config) config.AdapterConfig { return c.Adapter })
	headers := a.Headers
	if c.IsSet("adapter-header") {
		h, err := parseHeaders(c.StringSlice("adapter-header"))
		if err != nil {
			return config.AdapterConfig{}, err
		}
		headers = h
	}
	retries := resolveIntPtr(c, "adapter-retries", a.Retries)
	return config.AdapterConfig{
		Type:    resolveString(c, "adapter", a.Type),
		URL:     resolveString(c, "adapter-url", a.URL),
		Channel: resolveString(c, "adapter-channel", a.Channel),
		Headers: headers,
		Timeout: config.Duration{Duration: resolveDuration(c, "adapter-timeout", a.Timeout.Duration)},
		Retries: &retries,
	}, nil
}
