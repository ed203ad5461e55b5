package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Manifest records where a run stands. FileStorage rewrites it after every
// checkpoint and reads it first on resume.
type Manifest struct {
	LastEpoch      int       `json:"last_epoch"`
	Checkpoint     string    `json:"checkpoint"`
	BestEpoch      int       `json:"best_epoch,omitempty"`
	BestCheckpoint string    `json:"best_checkpoint,omitempty"`
	Model          string    `json:"model"`
	Format         string    `json:"format"`
	Compressed     bool      `json:"compressed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// readManifest returns nil, nil when no manifest exists yet
func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.LastEpoch < 0 {
		return nil, fmt.Errorf("manifest %s has negative last_epoch %d", path, m.LastEpoch)
	}
	return &m, nil
}
