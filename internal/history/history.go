// Package history persists the set of outage identifiers that have already
// been notified, so repeat runs stay quiet about known outages.
package history

import (
	"encoding/json"
	"fmt"
	"os"
)

type fileFormat struct {
	NotifiedOutages []string `json:"notified_outages"`
}

// History is the notification dedup state: a hash set for membership checks
// plus an insertion-ordered log that is what actually gets persisted.
type History struct {
	seen  map[string]struct{}
	order []string
}

// New returns an empty history.
func New() *History {
	return &History{seen: make(map[string]struct{})}
}

// Load reads history from disk. A missing, unreadable, or corrupt file
// yields an empty history together with the underlying error so the caller
// can log it; the run must never fail on history state.
func Load(path string) (*History, error) {
	h := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, fmt.Errorf("read history file: %w", err)
	}

	var decoded fileFormat
	if err := json.Unmarshal(data, &decoded); err != nil {
		return New(), fmt.Errorf("decode history file: %w", err)
	}

	for _, id := range decoded.NotifiedOutages {
		h.Add(id)
	}
	return h, nil
}

// Contains reports whether the outage id has already been notified.
func (h *History) Contains(id string) bool {
	_, ok := h.seen[id]
	return ok
}

// Add records an outage id. Returns false without mutating if the id is
// already present, so the persisted log never holds duplicates.
func (h *History) Add(id string) bool {
	if h.Contains(id) {
		return false
	}
	h.seen[id] = struct{}{}
	h.order = append(h.order, id)
	return true
}

// IDs returns the notified ids in insertion order.
func (h *History) IDs() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Len returns the number of distinct notified ids.
func (h *History) Len() int {
	return len(h.order)
}

// Save overwrites the history file with the full ordered log. The write is
// a plain overwrite, not crash-safe.
func (h *History) Save(path string) error {
	ids := h.order
	if ids == nil {
		ids = []string{}
	}

	payload, err := json.MarshalIndent(fileFormat{NotifiedOutages: ids}, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}
