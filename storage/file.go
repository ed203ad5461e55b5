package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/training"
)

const (
	checkpointDir    = "checkpoints"
	manifestFile     = "manifest.json"
	metricsFile      = "metrics.jsonl"
	checkpointPrefix = "checkpoint_"
	bestPrefix       = "best_checkpoint_"
)

// FileStorage keeps checkpoints, a metrics log and a manifest in a directory
//
//	<dir>/manifest.json
//	<dir>/metrics.jsonl
//	<dir>/checkpoints/checkpoint_00000001.json
//	<dir>/checkpoints/best_checkpoint_00000001.json
type FileStorage struct {
	dir        string
	saver      *checkpoints.Saver
	strategy   checkpoints.Strategy
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	extra      []training.Callback
	streaming  []training.Callback
	curves     *CurveRecorder
	createdAt  time.Time
}

// FileOption configures a FileStorage
type FileOption func(*FileStorage)

// WithLogger sets the logger used for write and delete events
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackOff replaces the retry policy used for every file write
func WithBackOff(fn func() backoff.BackOff) FileOption {
	return func(s *FileStorage) {
		if fn != nil {
			s.newBackOff = fn
		}
	}
}

// WithStreamingCallbacks appends callbacks after the built-in metrics
// logger and curve recorder
func WithStreamingCallbacks(callbacks ...training.Callback) FileOption {
	return func(s *FileStorage) {
		s.extra = append(s.extra, callbacks...)
	}
}

// NewFileStorage creates the directory layout under dir
func NewFileStorage(dir string, saver *checkpoints.Saver, opts ...FileOption) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("storage directory cannot be empty")
	}
	if saver == nil {
		saver = checkpoints.NewSaver(checkpoints.FormatJSON, false)
	}
	s := &FileStorage{
		dir:        dir,
		saver:      saver,
		logger:     slog.Default(),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Join(dir, checkpointDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s.curves = NewCurveRecorder(filepath.Join(dir, "curves.json"), s.logger)
	s.streaming = append([]training.Callback{NewMetricsLogger(s.logger), s.curves}, s.extra...)
	return s, nil
}

// Dir returns the storage root
func (s *FileStorage) Dir() string { return s.dir }

// SetCheckpointStrategy sets the policy consulted after every checkpoint
func (s *FileStorage) SetCheckpointStrategy(strategy checkpoints.Strategy) {
	s.strategy = strategy
}

// StreamingCallbacks returns the callbacks the driver runs after its own
func (s *FileStorage) StreamingCallbacks() []training.Callback {
	out := make([]training.Callback, len(s.streaming))
	copy(out, s.streaming)
	return out
}

// CheckpointPath returns the path of the regular checkpoint for epoch
func (s *FileStorage) CheckpointPath(epoch int) string {
	return filepath.Join(s.dir, checkpointDir, fmt.Sprintf("%s%08d%s", checkpointPrefix, epoch, s.saver.Extension()))
}

// BestCheckpointPath returns the path of the best checkpoint for epoch
func (s *FileStorage) BestCheckpointPath(epoch int) string {
	return filepath.Join(s.dir, checkpointDir, fmt.Sprintf("%s%08d%s", bestPrefix, epoch, s.saver.Extension()))
}

// Checkpoint persists epoch's state and then applies the strategy's
// retention rules. The manifest is written only after every copy of the
// checkpoint is on disk; until then a failure rolls the strategy back.
func (s *FileStorage) Checkpoint(epoch int, result *training.EpochResult, model training.Model, opt optimizer.Optimizer, callbacks *training.CallbackList) error {
	snap, err := takeSnapshot(s.strategy, epoch, result, model, opt, callbacks)
	if err != nil {
		return err
	}
	if err := s.persist(snap, epoch, result, model); err != nil {
		return errors.Join(err, snap.rollback(s.strategy))
	}

	if epoch > 1 && s.strategy.ShouldDeletePreviousCheckpoint(epoch) {
		s.remove(s.CheckpointPath(epoch - 1))
	}
	if snap.storeBest && snap.prevBest > 0 && snap.prevBest != epoch {
		s.remove(s.BestCheckpointPath(snap.prevBest))
	}
	return nil
}

func (s *FileStorage) persist(snap *snapshot, epoch int, result *training.EpochResult, model training.Model) error {
	data, err := s.saver.Marshal(snap.checkpoint)
	if err != nil {
		return err
	}

	path := s.CheckpointPath(epoch)
	if err := s.write(path, data); err != nil {
		return err
	}
	s.logger.Debug("Checkpoint written", "epoch", epoch, "path", path, "bytes", len(data))

	if snap.storeBest {
		bestPath := s.BestCheckpointPath(epoch)
		if err := s.write(bestPath, data); err != nil {
			return err
		}
		s.logger.Debug("Best checkpoint written", "epoch", epoch, "path", bestPath)
	}

	if err := s.appendMetrics(epoch, result); err != nil {
		return err
	}

	manifest := &Manifest{
		LastEpoch:  epoch,
		Checkpoint: filepath.Base(path),
		BestEpoch:  s.strategy.CurrentBestCheckpointEpoch(),
		Model:      model.Name(),
		Format:     s.saver.Format().String(),
		Compressed: s.saver.Extension() != s.saver.Format().Extension(),
		UpdatedAt:  time.Now().UTC(),
	}
	if manifest.BestEpoch > 0 {
		manifest.BestCheckpoint = filepath.Base(s.BestCheckpointPath(manifest.BestEpoch))
	}
	return s.writeManifest(manifest)
}

// ResumeLearning loads the checkpoint named by the manifest into model. It
// returns 0 and a nil hidden state when the directory holds no run yet.
func (s *FileStorage) ResumeLearning(model training.Model) (int, *training.HiddenState, error) {
	manifest, err := readManifest(filepath.Join(s.dir, manifestFile))
	if err != nil {
		return 0, nil, err
	}
	if manifest == nil || manifest.LastEpoch == 0 {
		return 0, nil, nil
	}
	s.createdAt = manifest.CreatedAt

	path := filepath.Join(s.dir, checkpointDir, manifest.Checkpoint)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return 0, nil, fmt.Errorf("epoch %d: %s: %w", manifest.LastEpoch, path, ErrNoCheckpoint)
	}
	ck, err := s.saver.Load(path)
	if err != nil {
		return 0, nil, err
	}
	if ck.Epoch != manifest.LastEpoch {
		return 0, nil, fmt.Errorf("checkpoint %s holds epoch %d, manifest says %d", path, ck.Epoch, manifest.LastEpoch)
	}
	hidden, err := restoreSnapshot(s.strategy, ck, model)
	if err != nil {
		return 0, nil, err
	}

	history, err := s.LoadHistory()
	if err != nil {
		return 0, nil, err
	}
	s.curves.Seed(history)

	s.logger.Info("Resuming from checkpoint", "epoch", ck.Epoch, "path", path)
	return ck.Epoch, hidden, nil
}

// LoadHistory reads every epoch result from metrics.jsonl
func (s *FileStorage) LoadHistory() (*training.History, error) {
	results, err := s.readMetrics()
	if err != nil {
		return nil, err
	}
	history := training.NewHistory()
	for _, r := range results {
		history.Add(r)
	}
	return history, nil
}

func (s *FileStorage) readMetrics() ([]*training.EpochResult, error) {
	f, err := os.Open(filepath.Join(s.dir, metricsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics log: %w", err)
	}
	defer f.Close()

	var results []*training.EpochResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r training.EpochResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to parse metrics line %d: %w", line, err)
		}
		results = append(results, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metrics log: %w", err)
	}
	return results, nil
}

// appendMetrics rewrites the log with every line before epoch plus the new
// result, so a resumed run never repeats an epoch
func (s *FileStorage) appendMetrics(epoch int, result *training.EpochResult) error {
	if result == nil {
		return nil
	}
	existing, err := s.readMetrics()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range existing {
		if r.Epoch >= epoch {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode metrics for epoch %d: %w", r.Epoch, err)
		}
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode metrics for epoch %d: %w", epoch, err)
	}
	return s.write(filepath.Join(s.dir, metricsFile), buf.Bytes())
}

func (s *FileStorage) writeManifest(m *Manifest) error {
	if s.createdAt.IsZero() {
		s.createdAt = m.UpdatedAt
	}
	m.CreatedAt = s.createdAt
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return s.write(filepath.Join(s.dir, manifestFile), data)
}

func (s *FileStorage) write(path string, data []byte) error {
	return retryWrite(s.logger, s.newBackOff(), path, data)
}

// remove deletes a file the strategy no longer needs. Failures are logged,
// not returned.
func (s *FileStorage) remove(path string) {
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to delete checkpoint", "path", path, "error", err)
		}
		return
	}
	s.logger.Info("Deleted checkpoint", "path", path)
}
