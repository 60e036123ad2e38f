package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_SplitsByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	log, err := NewWithWriters("info", &out, &errOut)
	if err != nil {
		t.Fatalf("NewWithWriters: %v", err)
	}

	log.Debug("hidden")
	log.Info("cycle complete", zap.Int("cycle", 3))
	log.Error("migrate failed")
	log.Sync()

	if strings.Contains(out.String(), "hidden") {
		t.Error("debug line should be filtered at info level")
	}
	if strings.Contains(out.String(), "migrate failed") {
		t.Error("error line should not reach stdout")
	}
	if !strings.Contains(errOut.String(), "migrate failed") {
		t.Error("error line missing from stderr")
	}

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &line); err != nil {
		t.Fatalf("stdout is not one JSON line: %v (%q)", err, out.String())
	}
	if line["msg"] != "cycle complete" || line["cycle"] != float64(3) {
		t.Errorf("unexpected fields %v", line)
	}
}

func TestNew_ErrorLevelOnly(t *testing.T) {
	var out, errOut bytes.Buffer
	log, err := NewWithWriters("error", &out, &errOut)
	if err != nil {
		t.Fatalf("NewWithWriters: %v", err)
	}
	log.Warn("quiet")
	log.Sync()
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("expected no output, got %q / %q", out.String(), errOut.String())
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
