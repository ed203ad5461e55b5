package storage

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/training"
)

// MemoryStorage keeps encoded checkpoints in a map. It follows the same
// retention rules as FileStorage and is used for dry runs and tests.
type MemoryStorage struct {
	mu        sync.Mutex
	saver     *checkpoints.Saver
	strategy  checkpoints.Strategy
	streaming []training.Callback

	snapshots map[int][]byte
	best      []byte
	bestEpoch int
	lastEpoch int
	results   []*training.EpochResult
}

// NewMemoryStorage creates an empty in-memory store. Checkpoints round-trip
// through saver so the encoding path is exercised exactly as on disk.
func NewMemoryStorage(saver *checkpoints.Saver, logger *slog.Logger, streaming ...training.Callback) *MemoryStorage {
	if saver == nil {
		saver = checkpoints.NewSaver(checkpoints.FormatMsgpack, false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStorage{
		saver:     saver,
		streaming: append([]training.Callback{NewMetricsLogger(logger)}, streaming...),
		snapshots: make(map[int][]byte),
	}
}

func (s *MemoryStorage) SetCheckpointStrategy(strategy checkpoints.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = strategy
}

func (s *MemoryStorage) StreamingCallbacks() []training.Callback {
	out := make([]training.Callback, len(s.streaming))
	copy(out, s.streaming)
	return out
}

func (s *MemoryStorage) Checkpoint(epoch int, result *training.EpochResult, model training.Model, opt optimizer.Optimizer, callbacks *training.CallbackList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := takeSnapshot(s.strategy, epoch, result, model, opt, callbacks)
	if err != nil {
		return err
	}
	data, err := s.saver.Marshal(snap.checkpoint)
	if err != nil {
		return errors.Join(err, snap.rollback(s.strategy))
	}

	s.snapshots[epoch] = data
	s.lastEpoch = epoch
	kept := s.results[:0]
	for _, r := range s.results {
		if r.Epoch < epoch {
			kept = append(kept, r)
		}
	}
	s.results = kept
	if result != nil {
		s.results = append(s.results, result)
	}

	if epoch > 1 && s.strategy.ShouldDeletePreviousCheckpoint(epoch) {
		delete(s.snapshots, epoch-1)
	}
	if snap.storeBest {
		s.best = data
		s.bestEpoch = epoch
	}
	return nil
}

func (s *MemoryStorage) ResumeLearning(model training.Model) (int, *training.HiddenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastEpoch == 0 {
		return 0, nil, nil
	}
	data, ok := s.snapshots[s.lastEpoch]
	if !ok {
		return 0, nil, ErrNoCheckpoint
	}
	ck, err := s.saver.Unmarshal(data)
	if err != nil {
		return 0, nil, err
	}
	hidden, err := restoreSnapshot(s.strategy, ck, model)
	if err != nil {
		return 0, nil, err
	}
	return ck.Epoch, hidden, nil
}

// LastEpoch returns the most recent checkpointed epoch
func (s *MemoryStorage) LastEpoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEpoch
}

// Epochs returns the epochs whose checkpoints are still held, in order
func (s *MemoryStorage) Epochs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.snapshots))
	for epoch := range s.snapshots {
		out = append(out, epoch)
	}
	sort.Ints(out)
	return out
}

// BestEpoch returns the epoch of the best checkpoint, or 0
func (s *MemoryStorage) BestEpoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestEpoch
}

// Best decodes the best checkpoint
func (s *MemoryStorage) Best() (*checkpoints.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best == nil {
		return nil, ErrNoCheckpoint
	}
	return s.saver.Unmarshal(s.best)
}

// Results returns the recorded epoch results in order
func (s *MemoryStorage) Results() []*training.EpochResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*training.EpochResult, len(s.results))
	copy(out, s.results)
	return out
}
