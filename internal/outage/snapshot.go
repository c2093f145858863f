package outage

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteSnapshot overwrites the diagnostic side file with the full
// consolidated list. Nothing in the watcher reads it back.
func WriteSnapshot(path string, outages []Consolidated) error {
	payload, err := json.MarshalIndent(outages, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal outage snapshot: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write outage snapshot: %w", err)
	}
	return nil
}
