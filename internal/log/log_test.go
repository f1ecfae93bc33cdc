package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"whatever": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetOutput_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug")
	defer SetOutput(&bytes.Buffer{}, "info")

	WithClaim(Settlement, 42).Info().Uint64("amount", 7).Msg("settled")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["component"] != "settlement" {
		t.Errorf("component = %v, want settlement", line["component"])
	}
	if line["claim_id"] != float64(42) {
		t.Errorf("claim_id = %v, want 42", line["claim_id"])
	}
}

func TestInit_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "engine.log")
	if err := Init("info", true, file); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer SetOutput(&bytes.Buffer{}, "info")
	Info().Msg("hello")
}
