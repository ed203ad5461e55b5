package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/optimizer"
	"github.com/tsawler/go-train/storage"
	"github.com/tsawler/go-train/train"
	"github.com/tsawler/go-train/training"
)

type optimizerKind struct {
	params []string
	build  func(p *params) optimizer.Factory
}

var optimizerKinds = map[string]optimizerKind{
	"sgd": {
		params: []string{"learning_rate", "momentum", "weight_decay", "nesterov"},
		build: func(p *params) optimizer.Factory {
			def := optimizer.DefaultSGDConfig()
			return optimizer.NewSGDFactory(optimizer.SGDConfig{
				LearningRate: p.float("learning_rate", def.LearningRate),
				Momentum:     p.float("momentum", def.Momentum),
				WeightDecay:  p.float("weight_decay", def.WeightDecay),
				Nesterov:     p.bool("nesterov", def.Nesterov),
			})
		},
	},
	"adam": {
		params: []string{"learning_rate", "beta1", "beta2", "epsilon", "weight_decay"},
		build: func(p *params) optimizer.Factory {
			def := optimizer.DefaultAdamConfig()
			return optimizer.NewAdamFactory(optimizer.AdamConfig{
				LearningRate: p.float("learning_rate", def.LearningRate),
				Beta1:        p.float("beta1", def.Beta1),
				Beta2:        p.float("beta2", def.Beta2),
				Epsilon:      p.float("epsilon", def.Epsilon),
				WeightDecay:  p.float("weight_decay", def.WeightDecay),
			})
		},
	},
	"rmsprop": {
		params: []string{"learning_rate", "alpha", "epsilon", "weight_decay", "momentum"},
		build: func(p *params) optimizer.Factory {
			def := optimizer.DefaultRMSPropConfig()
			return optimizer.NewRMSPropFactory(optimizer.RMSPropConfig{
				LearningRate: p.float("learning_rate", def.LearningRate),
				Alpha:        p.float("alpha", def.Alpha),
				Epsilon:      p.float("epsilon", def.Epsilon),
				WeightDecay:  p.float("weight_decay", def.WeightDecay),
				Momentum:     p.float("momentum", def.Momentum),
			})
		},
	},
	"adagrad": {
		params: []string{"learning_rate", "epsilon", "weight_decay"},
		build: func(p *params) optimizer.Factory {
			def := optimizer.DefaultAdaGradConfig()
			return optimizer.NewAdaGradFactory(optimizer.AdaGradConfig{
				LearningRate: p.float("learning_rate", def.LearningRate),
				Epsilon:      p.float("epsilon", def.Epsilon),
				WeightDecay:  p.float("weight_decay", def.WeightDecay),
			})
		},
	},
	"adadelta": {
		params: []string{"learning_rate", "rho", "epsilon", "weight_decay"},
		build: func(p *params) optimizer.Factory {
			def := optimizer.DefaultAdaDeltaConfig()
			return optimizer.NewAdaDeltaFactory(optimizer.AdaDeltaConfig{
				LearningRate: p.float("learning_rate", def.LearningRate),
				Rho:          p.float("rho", def.Rho),
				Epsilon:      p.float("epsilon", def.Epsilon),
				WeightDecay:  p.float("weight_decay", def.WeightDecay),
			})
		},
	},
	"nadam": {
		params: []string{"learning_rate", "beta1", "beta2", "epsilon", "weight_decay"},
		build: func(p *params) optimizer.Factory {
			def := optimizer.DefaultNadamConfig()
			return optimizer.NewNadamFactory(optimizer.NadamConfig{
				LearningRate: p.float("learning_rate", def.LearningRate),
				Beta1:        p.float("beta1", def.Beta1),
				Beta2:        p.float("beta2", def.Beta2),
				Epsilon:      p.float("epsilon", def.Epsilon),
				WeightDecay:  p.float("weight_decay", def.WeightDecay),
			})
		},
	},
}

type schedulerKind struct {
	params []string
	build  func(p *params) training.LRScheduler
}

var schedulerKinds = map[string]schedulerKind{
	"constant": {
		build: func(*params) training.LRScheduler { return &training.NoOpScheduler{} },
	},
	"step": {
		params: []string{"step_size", "gamma"},
		build: func(p *params) training.LRScheduler {
			return training.NewStepLRScheduler(p.int("step_size", 30), p.float("gamma", 0.1))
		},
	},
	"exponential": {
		params: []string{"gamma"},
		build: func(p *params) training.LRScheduler {
			return training.NewExponentialLRScheduler(p.float("gamma", 0.95))
		},
	},
	"cosine": {
		params: []string{"t_max", "eta_min"},
		build: func(p *params) training.LRScheduler {
			return training.NewCosineAnnealingLRScheduler(p.int("t_max", 100), p.float("eta_min", 0))
		},
	},
	"plateau": {
		params: []string{"factor", "patience", "threshold", "mode", "monitor"},
		build: func(p *params) training.LRScheduler {
			s := training.NewReduceLROnPlateauScheduler(
				p.float("factor", 0.1),
				p.int("patience", 10),
				p.float("threshold", 1e-4),
				p.string("mode", "min"),
			)
			s.Monitor = p.string("monitor", s.Monitor)
			return s
		},
	},
}

func kindNames[T any](kinds map[string]T) []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OptimizerFactory builds the factory for the optimizer block
func (f *File) OptimizerFactory() (optimizer.Factory, error) {
	kind := strings.ToLower(f.Optimizer.Kind)
	spec, ok := optimizerKinds[kind]
	if !ok {
		return nil, unknownKind("optimizer", f.Optimizer.Kind, kindNames(optimizerKinds))
	}
	p, err := newParams("optimizer "+kind, f.Optimizer.Body, spec.params)
	if err != nil {
		return nil, err
	}
	factory := spec.build(p)
	if p.err != nil {
		return nil, p.err
	}
	return factory, nil
}

// SchedulerFactory builds the factory for the scheduler block. It returns
// nil without an error when there is no scheduler block.
func (f *File) SchedulerFactory() (training.SchedulerFactory, error) {
	if f.Scheduler == nil {
		return nil, nil
	}
	kind := strings.ToLower(f.Scheduler.Kind)
	spec, ok := schedulerKinds[kind]
	if !ok {
		return nil, unknownKind("scheduler", f.Scheduler.Kind, kindNames(schedulerKinds))
	}
	p, err := newParams("scheduler "+kind, f.Scheduler.Body, spec.params)
	if err != nil {
		return nil, err
	}
	policy := spec.build(p)
	if p.err != nil {
		return nil, p.err
	}
	return training.NewSchedulerFactory(policy), nil
}

var storageKinds = []string{"file", "memory"}

func (s *StorageBlock) validate() error {
	s.Kind = strings.ToLower(s.Kind)
	if s.Kind == "" {
		s.Kind = "file"
	}
	if !contains(storageKinds, s.Kind) {
		return unknownKind("storage", s.Kind, storageKinds)
	}
	if s.Kind == "file" && s.Dir == "" {
		s.Dir = "runs"
	}
	_, err := checkpoints.ParseFormat(s.Format)
	return err
}

// UseMemoryStorage switches the job to in-memory storage, leaving any
// existing run directory untouched
func (f *File) UseMemoryStorage() {
	f.Storage.Kind = "memory"
}

// BuildStorage creates the storage backend, with the socket.io streamer
// attached when a streaming block is present. Extra callbacks run after it.
func (f *File) BuildStorage(logger *slog.Logger, extra ...training.Callback) (train.Storage, error) {
	format, err := checkpoints.ParseFormat(f.Storage.Format)
	if err != nil {
		return nil, err
	}
	saver := checkpoints.NewSaver(format, f.Storage.Compress)

	var streaming []training.Callback
	if f.Streaming != nil {
		streamer, err := f.buildStreamer(logger)
		if err != nil {
			return nil, err
		}
		streaming = append(streaming, streamer)
	}
	streaming = append(streaming, extra...)

	switch f.Storage.Kind {
	case "memory":
		return storage.NewMemoryStorage(saver, logger, streaming...), nil
	case "file":
		return storage.NewFileStorage(filepath.Clean(f.Storage.Dir), saver,
			storage.WithLogger(logger),
			storage.WithStreamingCallbacks(streaming...),
		)
	default:
		return nil, unknownKind("storage", f.Storage.Kind, storageKinds)
	}
}

func (f *File) buildStreamer(logger *slog.Logger) (*storage.SocketIOStreamer, error) {
	cfg := storage.StreamConfig{
		URL:       f.Streaming.SocketIOURL,
		Namespace: f.Streaming.Namespace,
		Event:     f.Streaming.Event,
	}
	if f.Streaming.Timeout != "" {
		d, err := time.ParseDuration(f.Streaming.Timeout)
		if err != nil {
			return nil, fmt.Errorf("streaming timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return storage.NewSocketIOStreamer(cfg, logger)
}
