package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := writeJSONFile(path, map[string]int{"activeDays": 2}); err != nil {
		t.Fatalf("writeJSONFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["activeDays"] != 2 {
		t.Errorf("activeDays = %d, want 2", got["activeDays"])
	}
}

func TestWriteJSONFileCreateError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "graph.json")
	err := writeJSONFile(path, struct{}{})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !strings.Contains(err.Error(), "create output") {
		t.Errorf("error = %q, want create output", err)
	}
}
