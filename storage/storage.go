// Package storage persists training progress. Implementations write a
// checkpoint after every epoch, decide which checkpoints to keep through a
// checkpoints.Strategy, and hand a resume point back to the driver.
package storage

import (
	"errors"
	"fmt"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/training"
)

// ErrNoCheckpoint is returned when the manifest points at a checkpoint that
// cannot be found
var ErrNoCheckpoint = errors.New("checkpoint not found")

// snapshot is everything one Checkpoint call needs to persist
type snapshot struct {
	checkpoint *checkpoints.Checkpoint
	storeBest  bool
	prevBest   int

	// strategy state before this epoch's best decision
	prevStrategy *training.HiddenState
}

// rollback undoes this epoch's best decision after a failed write
func (snap *snapshot) rollback(strategy checkpoints.Strategy) error {
	if err := strategy.RestoreState(snap.prevStrategy); err != nil {
		return fmt.Errorf("failed to roll back checkpoint strategy: %w", err)
	}
	return nil
}

// takeSnapshot settles the best-checkpoint decision first so the strategy
// state written into the hidden state already reflects this epoch, then
// collects optimizer, callback and strategy state. The strategy is left
// untouched when it fails.
func takeSnapshot(strategy checkpoints.Strategy, epoch int, result *training.EpochResult, model training.Model, opt optimizer.Optimizer, callbacks *training.CallbackList) (*snapshot, error) {
	if strategy == nil {
		return nil, errors.New("checkpoint strategy is not set")
	}
	snap := &snapshot{prevStrategy: training.NewHiddenState()}
	if err := strategy.WriteState(snap.prevStrategy); err != nil {
		return nil, err
	}

	storeBest, err := strategy.ShouldStoreBestCheckpoint(epoch, result)
	if err != nil {
		return nil, errors.Join(err, snap.rollback(strategy))
	}
	if storeBest {
		snap.storeBest = true
		snap.prevBest = strategy.CurrentBestCheckpointEpoch()
		strategy.StoreBestCheckpointEpoch(epoch)
	}

	hidden, err := collectState(strategy, opt, callbacks)
	if err != nil {
		return nil, errors.Join(err, snap.rollback(strategy))
	}

	snap.checkpoint = &checkpoints.Checkpoint{
		Epoch:   epoch,
		Model:   model.Name(),
		Result:  result,
		Weights: checkpoints.ExtractWeights(model.Parameters()),
		Hidden:  hidden,
	}
	return snap, nil
}

func collectState(strategy checkpoints.Strategy, opt optimizer.Optimizer, callbacks *training.CallbackList) (*training.HiddenState, error) {
	hidden := training.NewHiddenState()
	if opt != nil {
		state, err := opt.StateDict()
		if err != nil {
			return nil, fmt.Errorf("failed to extract optimizer state: %w", err)
		}
		hidden.Optimizer = state
	}
	if callbacks != nil {
		if err := callbacks.WriteState(hidden); err != nil {
			return nil, err
		}
	}
	if err := strategy.WriteState(hidden); err != nil {
		return nil, err
	}
	return hidden, nil
}

// restoreSnapshot loads weights into model and strategy state from ck
func restoreSnapshot(strategy checkpoints.Strategy, ck *checkpoints.Checkpoint, model training.Model) (*training.HiddenState, error) {
	if err := checkpoints.LoadWeights(ck.Weights, model.Parameters()); err != nil {
		return nil, fmt.Errorf("failed to load weights from epoch %d: %w", ck.Epoch, err)
	}
	hidden := ck.Hidden
	if hidden == nil {
		hidden = training.NewHiddenState()
	}
	if strategy != nil {
		if err := strategy.RestoreState(hidden); err != nil {
			return nil, fmt.Errorf("failed to restore checkpoint strategy: %w", err)
		}
	}
	return hidden, nil
}
