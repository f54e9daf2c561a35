package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/ferry/types"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("csv")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

func sampleReport() *types.SendReport {
	return &types.SendReport{
		ExchangeID: "ex-1",
		Peer:       "127.0.0.1:50000",
		Items: []types.ItemReport{
			{Kind: types.KindFeatureMatrix, Name: "features.bin", Size: 1000000, Duration: 20 * time.Millisecond},
			{Kind: types.KindLabelVector, Name: "labels.bin", Size: 500, Duration: time.Millisecond},
		},
		BytesSent:  1000500,
		Result:     []byte("secret-bytes"),
		ResultSize: 12,
		Duration:   1500 * time.Millisecond,
	}
}

func TestRenderer_JSON_Report(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)
	if err := r.Render(sampleReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded["exchange_id"] != "ex-1" {
		t.Errorf("exchange_id = %v, want ex-1", decoded["exchange_id"])
	}
	if _, ok := decoded["result"]; ok {
		t.Error("raw result bytes must not be rendered")
	}
}

func TestRenderer_YAML_Report(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)
	if err := r.Render(sampleReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"exchange_id: ex-1", "bytes_sent: 1000500", "name: labels.bin"} {
		if !strings.Contains(got, want) {
			t.Errorf("YAML output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_Table_Report(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(sampleReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	wants := []string{
		"exchange_id:", "ex-1",
		"duration:", "1.5s",
		"items\n",
		"kind", "feature-matrix", "labels.bin", "20ms",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret-bytes") {
		t.Errorf("table output leaked result bytes:\n%s", got)
	}
	if strings.Contains(got, "[2 items]") {
		t.Errorf("item slice should render as a table:\n%s", got)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	data := []types.ItemReport{
		{Kind: types.KindFeatureMatrix, Name: "first.bin"},
		{Kind: types.KindLabelVector, Name: "second.bin", Skipped: true},
	}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "kind") || !strings.Contains(got, "skipped") {
		t.Errorf("table output missing headers: %s", got)
	}
	if !strings.Contains(got, "first.bin") || !strings.Contains(got, "second.bin") {
		t.Errorf("table output missing data: %s", got)
	}
}

func TestRenderer_Table_Empty(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"empty slice", []string{}},
		{"nil report", (*types.ReceiveReport)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewRendererWithWriter(FormatTable, false, &buf)
			if err := r.Render(tt.data); err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if !strings.Contains(buf.String(), "(no results)") {
				t.Errorf("want '(no results)', got: %s", buf.String())
			}
		})
	}
}

func TestRenderer_NoColor_DoesNotAffectJSON(t *testing.T) {
	var bufColor, bufNoColor bytes.Buffer

	if err := NewRendererWithWriter(FormatJSON, false, &bufColor).Render(sampleReport()); err != nil {
		t.Fatalf("Render with color failed: %v", err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &bufNoColor).Render(sampleReport()); err != nil {
		t.Fatalf("Render without color failed: %v", err)
	}

	if bufColor.String() != bufNoColor.String() {
		t.Errorf("--no-color should not affect JSON output")
	}
}

func TestRenderer_RenderAll(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	recv := &types.ReceiveReport{ExchangeID: "ex-2", BytesReceived: 9}
	if err := r.RenderAll(sampleReport(), recv); err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "bytes_sent:") || !strings.Contains(got, "bytes_received:") {
		t.Errorf("RenderAll output missing a report:\n%s", got)
	}
	if strings.Index(got, "ex-1") > strings.Index(got, "ex-2") {
		t.Errorf("reports rendered out of order:\n%s", got)
	}
}
