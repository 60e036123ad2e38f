package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

// WriteSnapshot writes the ledger to <dir>/<key>.json, replacing any earlier
// snapshot with the same key. The file is written to a temp name first.
func WriteSnapshot(dir, key string, ledger *metrics.Ledger) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal ledger: %w", err)
	}
	path := filepath.Join(dir, key+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

// ReadSnapshot loads a ledger written by WriteSnapshot.
func ReadSnapshot(path string) (*metrics.Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	ledger := metrics.NewLedger()
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return ledger, nil
}
