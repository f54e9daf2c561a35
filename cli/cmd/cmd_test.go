package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/pithecene-io/ferry/cli/config"
	"github.com/pithecene-io/ferry/model"
	"github.com/pithecene-io/ferry/storage"
	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
	"github.com/pithecene-io/ferry/wire"
)

func TestOutcomeToExitCode(t *testing.T) {
	tests := []struct {
		status types.OutcomeStatus
		want   int
	}{
		{types.OutcomeSuccess, exitSuccess},
		{types.OutcomeTransferFailed, exitTransferFailed},
		{types.OutcomeValidationFailed, exitValidationFailed},
		{types.OutcomeComputationFailed, exitComputationFailed},
		{"unknown", exitTransferFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := outcomeToExitCode(tt.status); got != tt.want {
				t.Errorf("outcomeToExitCode(%q) = %d, want %d", tt.status, got, tt.want)
			}
		})
	}
}

func TestExitCodeConstants(t *testing.T) {
	codes := []int{exitSuccess, exitTransferFailed, exitValidationFailed, exitComputationFailed, exitUsage}
	for i, code := range codes {
		if code != i {
			t.Errorf("exit code %d = %d, want %d", i, code, i)
		}
	}
}

func TestExchangeExit(t *testing.T) {
	if err := exchangeExit(nil); err != nil {
		t.Errorf("exchangeExit(nil) = %v, want nil", err)
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", &wire.Error{Kind: wire.ErrTimeout, Op: "read frame header"}, exitTransferFailed},
		{"empty transfer", transfer.ErrEmptyTransfer, exitValidationFailed},
		{"unknown kind", fmt.Errorf("wrapped: %w", transfer.ErrUnknownItemKind), exitValidationFailed},
		{"computation", transfer.ErrComputationFailed, exitComputationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exitCoder cli.ExitCoder
			if !errors.As(exchangeExit(tt.err), &exitCoder) {
				t.Fatal("exchangeExit should return a cli.ExitCoder")
			}
			if exitCoder.ExitCode() != tt.want {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.want)
			}
		})
	}
}

func TestBuildResultSink(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantNil bool
		wantErr string
	}{
		{"none", config.StorageConfig{}, true, ""},
		{"memory", config.StorageConfig{Backend: config.BackendMemory}, false, ""},
		{"fs", config.StorageConfig{Backend: config.BackendFS, Path: dir}, false, ""},
		{"fs without path", config.StorageConfig{Backend: config.BackendFS}, true, "--storage-path"},
		{"s3 without path", config.StorageConfig{Backend: config.BackendS3}, true, "--storage-path"},
		{"unknown", config.StorageConfig{Backend: "gcs"}, true, "unknown --storage-backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := buildResultSink(t.Context(), tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("buildResultSink failed: %v", err)
			}
			if (sink == nil) != tt.wantNil {
				t.Errorf("sink nil = %v, want %v", sink == nil, tt.wantNil)
			}
		})
	}
}

func TestBuildAdapter(t *testing.T) {
	zero := 0
	tests := []struct {
		name    string
		cfg     config.AdapterConfig
		wantNil bool
		wantErr bool
	}{
		{"none", config.AdapterConfig{}, true, false},
		{"webhook", config.AdapterConfig{Type: config.AdapterWebhook, URL: "http://127.0.0.1:1/hook"}, false, false},
		{"redis", config.AdapterConfig{Type: config.AdapterRedis, URL: "redis://127.0.0.1:1", Retries: &zero}, false, false},
		{"webhook without url", config.AdapterConfig{Type: config.AdapterWebhook}, true, true},
		{"redis bad url", config.AdapterConfig{Type: config.AdapterRedis, URL: "://bad"}, true, true},
		{"unknown", config.AdapterConfig{Type: "kafka", URL: "x"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad, err := buildAdapter(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (ad == nil) != tt.wantNil {
				t.Errorf("adapter nil = %v, want %v", ad == nil, tt.wantNil)
			}
			if ad != nil {
				_ = ad.Close()
			}
		})
	}
}

// newTestApp wires the exchange commands with os.Exit suppressed so
// errors are returned.
func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{SendCommand(), ReceiveCommand(), LoopbackCommand(), VersionCommand("test")}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitSuccess
	}
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) {
		t.Fatalf("error %v is not a cli.ExitCoder", err)
	}
	return exitCoder.ExitCode()
}

// writeProblem writes a solvable feature matrix and label vector into dir.
func writeProblem(t *testing.T, dir string) {
	t.Helper()
	weights := []float64{1.5, -0.5}
	rows := 30
	x := mat.NewDense(rows, len(weights), nil)
	for i := range rows {
		for j := range weights {
			x.Set(i, j, math.Sin(float64(i+1)*float64(j+3)))
		}
	}
	y := mat.NewVecDense(rows, nil)
	y.MulVec(x, mat.NewVecDense(len(weights), weights))

	var features, labels bytes.Buffer
	if err := model.EncodeMatrix(&features, x); err != nil {
		t.Fatalf("EncodeMatrix: %v", err)
	}
	if err := model.EncodeVector(&labels, y); err != nil {
		t.Fatalf("EncodeVector: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "X.bin"), features.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "y.bin"), labels.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoopbackAction_Train(t *testing.T) {
	sendDir, recvDir, results := t.TempDir(), t.TempDir(), t.TempDir()
	writeProblem(t, sendDir)
	metricsPath := filepath.Join(t.TempDir(), "ferry.prom")

	err := newTestApp().Run([]string{"ferry", "loopback",
		"--send-dir", sendDir,
		"--receive-dir", recvDir,
		"--item", "feature-matrix=X.bin",
		"--item", "label-vector=y.bin",
		"--expect-result",
		"--verify-model",
		"--train",
		"--chunk-size", "64",
		"--storage-backend", "fs",
		"--storage-path", results,
		"--metrics-file", metricsPath,
		"--log-level", "error",
		"--quiet",
	})
	if code := exitCodeOf(t, err); code != exitSuccess {
		t.Fatalf("exit code = %d (%v), want 0", code, err)
	}

	for _, name := range []string{"X.bin", "y.bin"} {
		want, _ := os.ReadFile(filepath.Join(sendDir, name))
		got, err := os.ReadFile(filepath.Join(recvDir, name))
		if err != nil {
			t.Fatalf("received %s: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s differs after transfer", name)
		}
	}

	var stored []string
	err = filepath.WalkDir(results, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == storage.DefaultResultName {
			stored = append(stored, path)
		}
		return nil
	})
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored results = %v (%v), want exactly one", stored, err)
	}
	if !strings.Contains(filepath.ToSlash(stored[0]), "datasets/"+storage.DefaultDataset+"/") {
		t.Errorf("result stored at %s, want under the %s dataset", stored[0], storage.DefaultDataset)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	for _, want := range []string{
		`ferry_exchanges_total{outcome="completed",role="sender",storage_backend="fs"} 1`,
		`ferry_exchanges_total{outcome="completed",role="receiver",storage_backend="none"} 1`,
	} {
		if !strings.Contains(string(prom), want) {
			t.Errorf("metrics missing %q:\n%s", want, prom)
		}
	}
}

func TestLoopbackAction_ConfigFile(t *testing.T) {
	sendDir, recvDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(sendDir, "blob.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(recvDir, "stale.bin")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgPath := filepath.Join(t.TempDir(), "ferry.yaml")
	cfgBody := fmt.Sprintf(`chunk_size: 3
sender:
  data_dir: %s
  items:
    - kind: feature-matrix
      name: blob.bin
receiver:
  data_dir: %s
  reset: true
`, sendDir, recvDir)
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatal(err)
	}

	err := newTestApp().Run([]string{"ferry", "loopback", "--config", cfgPath, "--quiet", "--log-level", "error"})
	if code := exitCodeOf(t, err); code != exitSuccess {
		t.Fatalf("exit code = %d (%v), want 0", code, err)
	}
	got, err := os.ReadFile(filepath.Join(recvDir, "blob.bin"))
	if err != nil || string(got) != "payload" {
		t.Errorf("received blob = %q, %v; want payload", got, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("reset should remove stale files, stat err = %v", err)
	}
}

func TestActions_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"send without items", []string{"send", "--data-dir", dir}, "--item"},
		{"send without data dir", []string{"send", "--item", "feature-matrix=x.bin"}, "--data-dir is required"},
		{"verify without result", []string{"send", "--data-dir", dir, "--item", "feature-matrix=x.bin", "--verify-model"}, "--verify-model requires --expect-result"},
		{"bad item", []string{"send", "--data-dir", dir, "--item", "x.bin"}, "kind=name"},
		{"bad format", []string{"send", "--data-dir", dir, "--item", "feature-matrix=x.bin", "--format", "xml"}, "invalid format"},
		{"bad log level", []string{"receive", "--data-dir", dir, "--log-level", "loud"}, "--log-level"},
		{"bad policy", []string{"receive", "--data-dir", dir, "--unknown-kinds", "ignore"}, "unknown kind policy"},
		{"receive without data dir", []string{"receive"}, "--data-dir is required"},
		{"missing config", []string{"loopback", "--config", "/nonexistent/ferry.yaml"}, "config file not found"},
		{"undefined flag", []string{"send", "--no-such-flag"}, "no-such-flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestApp().Run(append([]string{"ferry"}, tt.args...))
			if code := exitCodeOf(t, err); code != exitUsage {
				t.Errorf("exit code = %d (%v), want %d", code, err, exitUsage)
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}
