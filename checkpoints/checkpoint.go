package checkpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the checkpoint file does not exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorruptCheckpoint indicates the checkpoint file could not be decoded
	// or is missing required fields.
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint")
)

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// OptimizerState captures optimizer-specific state (momentum buffers, hyperparameters, step count)
type OptimizerState struct {
	Type       string             `json:"type"` // "SGD", "Adam", etc.
	StepCount  uint64             `json:"step_count"`
	Parameters map[string]float64 `json:"parameters"`
	StateData  []StateTensor      `json:"state_data,omitempty"`
}

// StateTensor represents an optimizer state tensor (momentum, variance, etc.)
type StateTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// SchedulerState captures learning rate scheduler state
type SchedulerState struct {
	Type      string  `json:"type"`
	BaseLR    float64 `json:"base_lr"`
	StepCount int     `json:"step_count"`
}

// Metadata contains checkpoint metadata
type Metadata struct {
	RunID       string    `json:"run_id"`
	Framework   string    `json:"framework"`
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is a full training snapshot: the epoch to resume at, model
// weights, optimizer state, and (if a scheduler is configured) scheduler state.
type Checkpoint struct {
	Epoch     int             `json:"epoch"` // next epoch to run
	Weights   []WeightTensor  `json:"model"`
	Optimizer *OptimizerState `json:"optimizer"`
	Scheduler *SchedulerState `json:"scheduler,omitempty"`
	Metadata  Metadata        `json:"metadata"`
}

// AveragedCheckpoint is the smaller bundle written for the EMA shadow model:
// weights and the decay constant, no optimizer or scheduler state.
type AveragedCheckpoint struct {
	Epoch    int            `json:"epoch"`
	Weights  []WeightTensor `json:"model"`
	Decay    float64        `json:"decay"`
	Metadata Metadata       `json:"metadata"`
}

// Store saves and loads checkpoint bundles. All writes go through a temp file
// plus rename so a concurrent reader never observes a partial checkpoint.
type Store struct {
	runID string
}

// NewStore creates a checkpoint store. All checkpoints written by the same
// store share one run ID in their metadata.
func NewStore() *Store {
	return &Store{runID: uuid.NewString()}
}

// RunID returns the store's run identifier.
func (s *Store) RunID() string {
	return s.runID
}

// Save writes a full checkpoint to path, atomically.
func (s *Store) Save(path string, cp *Checkpoint) error {
	s.fillMetadata(&cp.Metadata)
	return writeJSONAtomic(path, cp)
}

// SaveAveraged writes an averaged-model checkpoint to path, atomically.
func (s *Store) SaveAveraged(path string, cp *AveragedCheckpoint) error {
	s.fillMetadata(&cp.Metadata)
	return writeJSONAtomic(path, cp)
}

// Load reads a full checkpoint from path. It returns ErrNotFound if the file
// does not exist and ErrCorruptCheckpoint if it cannot be decoded or is
// missing required fields.
func (s *Store) Load(path string) (*Checkpoint, error) {
	var cp Checkpoint
	if err := readJSON(path, &cp); err != nil {
		return nil, err
	}
	if cp.Epoch < 0 || len(cp.Weights) == 0 {
		return nil, fmt.Errorf("%w: missing epoch or model weights in %s", ErrCorruptCheckpoint, path)
	}
	// The optimizer state is a required field of the full bundle; only the
	// scheduler is nullable. Resuming without it would silently reset momentum.
	if cp.Optimizer == nil {
		return nil, fmt.Errorf("%w: missing optimizer state in %s", ErrCorruptCheckpoint, path)
	}
	return &cp, nil
}

// LoadAveraged reads an averaged-model checkpoint from path.
func (s *Store) LoadAveraged(path string) (*AveragedCheckpoint, error) {
	var cp AveragedCheckpoint
	if err := readJSON(path, &cp); err != nil {
		return nil, err
	}
	if cp.Epoch < 0 || len(cp.Weights) == 0 {
		return nil, fmt.Errorf("%w: missing epoch or model weights in %s", ErrCorruptCheckpoint, path)
	}
	if cp.Decay <= 0 || cp.Decay >= 1 {
		return nil, fmt.Errorf("%w: decay %v outside (0,1) in %s", ErrCorruptCheckpoint, cp.Decay, path)
	}
	return &cp, nil
}

func (s *Store) fillMetadata(md *Metadata) {
	if md.Framework == "" {
		md.Framework = "predstab"
		md.Version = "1.0.0"
	}
	md.RunID = s.runID
	md.CreatedAt = time.Now()
}

func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %v", err)
	}
	tmpName := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint temp file: %v", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename checkpoint into place: %v", err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	return nil
}
