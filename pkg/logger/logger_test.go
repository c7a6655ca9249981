package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestNewFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.With(String("component", "engine")).Info("refresh done",
		String("symbol", "AAPL"),
		Float64("price", 187.5),
		Bool("signal", true),
		Error(errors.New("boom")),
	)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	for _, want := range []string{`"symbol":"AAPL"`, `"price":187.5`, `"signal":true`, `"component":"engine"`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Error("ignored", String("k", "v"))
}
