// Package train is the training driver. It wires a model, a data source,
// an optimizer, callbacks and a storage backend together and runs the
// epoch loop, resuming from whatever the storage backend last persisted.
package train

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/data"
	"github.com/tsawler/go-train/device"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/training"
)

// ModelConfig holds the run settings fixed at startup
type ModelConfig struct {
	Device string
	Epochs int
}

//go:generate mockgen -source=command.go -destination=mock_storage_test.go -package=train Storage

// Storage persists epochs and hands back a resume point
type Storage interface {
	SetCheckpointStrategy(strategy checkpoints.Strategy)
	StreamingCallbacks() []training.Callback
	ResumeLearning(model training.Model) (lastEpoch int, hidden *training.HiddenState, err error)
	Checkpoint(epoch int, result *training.EpochResult, model training.Model, opt optimizer.Optimizer, callbacks *training.CallbackList) error
}

// Command runs one training job
type Command struct {
	config      ModelConfig
	model       training.Model
	source      data.Source
	optimizerFn optimizer.Factory
	storage     Storage

	schedulerFn training.SchedulerFactory
	callbacks   []training.Callback
	checkpoint  checkpoints.Config
	out         io.Writer
	logger      *slog.Logger
}

// Option configures a Command
type Option func(*Command)

// WithScheduler sets the learning rate scheduler factory
func WithScheduler(fn training.SchedulerFactory) Option {
	return func(c *Command) { c.schedulerFn = fn }
}

// WithCallbacks adds user callbacks. They run after the scheduler and
// before the storage callbacks.
func WithCallbacks(callbacks ...training.Callback) Option {
	return func(c *Command) { c.callbacks = append(c.callbacks, callbacks...) }
}

// WithCheckpoint replaces the default checkpoint retention settings
func WithCheckpoint(cfg checkpoints.Config) Option {
	return func(c *Command) { c.checkpoint = cfg }
}

// WithOutput sets where the model summary and epoch banners are written
func WithOutput(w io.Writer) Option {
	return func(c *Command) {
		if w != nil {
			c.out = w
		}
	}
}

// WithLogger sets the logger for run lifecycle events
func WithLogger(logger *slog.Logger) Option {
	return func(c *Command) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a command and installs the checkpoint strategy on storage
func New(cfg ModelConfig, model training.Model, source data.Source, optimizerFn optimizer.Factory, storage Storage, opts ...Option) (*Command, error) {
	switch {
	case model == nil:
		return nil, errors.New("train: model cannot be nil")
	case source == nil:
		return nil, errors.New("train: data source cannot be nil")
	case optimizerFn == nil:
		return nil, errors.New("train: optimizer factory cannot be nil")
	case storage == nil:
		return nil, errors.New("train: storage cannot be nil")
	}
	c := &Command{
		config:      cfg,
		model:       model,
		source:      source,
		optimizerFn: optimizerFn,
		storage:     storage,
		checkpoint:  checkpoints.DefaultConfig(),
		out:         os.Stdout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	strategy, err := checkpoints.NewClassicStrategy(c.checkpoint)
	if err != nil {
		return nil, err
	}
	c.storage.SetCheckpointStrategy(strategy)
	return c, nil
}

// Run trains from the epoch after the last stored one up to Epochs and
// returns the results of the epochs it ran
func (c *Command) Run() (*training.History, error) {
	dev, err := device.Parse(c.config.Device)
	if err != nil {
		return nil, err
	}
	learner, err := training.NewLearner(dev, c.model)
	if err != nil {
		return nil, err
	}

	opt, err := c.optimizerFn(learner.Model().Parameters())
	if err != nil {
		return nil, err
	}

	var scheduler training.Callback
	if c.schedulerFn != nil {
		scheduler, err = c.schedulerFn(opt)
		if err != nil {
			return nil, err
		}
	}
	callbacks := training.NewCallbackList(scheduler, c.callbacks, c.storage.StreamingCallbacks())

	lastEpoch, hidden, err := c.storage.ResumeLearning(learner.Model())
	if err != nil {
		return nil, err
	}
	if lastEpoch > 0 {
		if hidden == nil {
			return nil, fmt.Errorf("storage resumed epoch %d without hidden state", lastEpoch)
		}
		if err := opt.LoadStateDict(hidden.Optimizer); err != nil {
			return nil, err
		}
		if err := callbacks.LoadState(hidden); err != nil {
			return nil, err
		}
	}

	learner.Summary(c.out)

	if lastEpoch > c.config.Epochs {
		c.logger.Warn("Stored run is past the requested epoch count, nothing to train",
			"last_epoch", lastEpoch, "epochs", c.config.Epochs)
	}
	c.logger.Info("Training started",
		"model", c.model.Name(), "device", dev.String(),
		"start_epoch", lastEpoch+1, "epochs", c.config.Epochs,
		"callbacks", callbacks.Names())

	if err := callbacks.OnTrainBegin(); err != nil {
		return nil, err
	}

	history := training.NewHistory()
	for epoch := lastEpoch + 1; epoch <= c.config.Epochs; epoch++ {
		fmt.Fprintf(c.out, "|-------- Epoch %06d Lr=%.6f ----------|\n", epoch, opt.LearningRate())

		result, err := learner.RunEpoch(epoch, learner.Metrics(), c.source, opt, callbacks)
		if err != nil {
			return nil, err
		}
		if err := c.storage.Checkpoint(epoch, result, learner.Model(), opt, callbacks); err != nil {
			return nil, err
		}
		history.Add(result)
	}

	if err := callbacks.OnTrainEnd(); err != nil {
		return nil, err
	}
	c.logger.Info("Training finished", "epochs_run", history.Len())
	return history, nil
}
