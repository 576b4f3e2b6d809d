package sim

import (
	"fmt"
	"time"

	"flowswap/internal/storage"
)

// Checkpoint records the last scenario step whose events reached the sinks.
type Checkpoint struct {
	Scenario        string `json:"scenario"`
	LastAppliedStep uint64 `json:"last_applied_step"`
	UpdatedAt       string `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk. An empty path disables it.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if c == nil || c.path == "" {
		return Checkpoint{}, false, nil
	}
	var cp Checkpoint
	ok, err := storage.ReadJSONFile(c.path, &cp)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, ok, nil
}

func (c *CheckpointStore) Save(scenario string, lastApplied uint64) error {
	if c == nil || c.path == "" {
		return nil
	}
	err := storage.WriteJSONFile(c.path, Checkpoint{
		Scenario:        scenario,
		LastAppliedStep: lastApplied,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
