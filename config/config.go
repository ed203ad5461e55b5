// Package config loads a training job from an HCL file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/tsawler/go-train/checkpoints"
	"github.com/tsawler/go-train/data"
	"github.com/tsawler/go-train/models"
	"github.com/tsawler/go-train/train"
)

// ErrUnknownKind is returned for an optimizer, scheduler, dataset or
// storage kind this package cannot build
var ErrUnknownKind = errors.New("unknown kind")

// File is the decoded form of a job file
type File struct {
	Device     string           `hcl:"device,optional"`
	Epochs     int              `hcl:"epochs"`
	Seed       int64            `hcl:"seed,optional"`
	Model      *ModelBlock      `hcl:"model,block"`
	Data       *DataBlock       `hcl:"data,block"`
	Optimizer  *KindBlock       `hcl:"optimizer,block"`
	Scheduler  *KindBlock       `hcl:"scheduler,block"`
	Checkpoint *CheckpointBlock `hcl:"checkpoint,block"`
	Storage    *StorageBlock    `hcl:"storage,block"`
	Streaming  *StreamingBlock  `hcl:"streaming,block"`
}

type ModelBlock struct {
	Hidden []int `hcl:"hidden,optional"`
}

type DataBlock struct {
	Kind            string  `hcl:"kind"`
	Samples         int     `hcl:"samples"`
	Classes         int     `hcl:"classes"`
	Features        int     `hcl:"features,optional"`
	Noise           float64 `hcl:"noise,optional"`
	BatchSize       int     `hcl:"batch_size,optional"`
	ValidationSplit float64 `hcl:"validation_split,optional"`
	Shuffle         *bool   `hcl:"shuffle,optional"`
}

// KindBlock is a labelled block whose attributes depend on the label, such
// as optimizer "adam" { learning_rate = 0.001 }
type KindBlock struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

type CheckpointBlock struct {
	Frequency  int    `hcl:"frequency,optional"`
	Metric     string `hcl:"metric,optional"`
	MetricMode string `hcl:"metric_mode,optional"`
	StoreBest  bool   `hcl:"store_best,optional"`
}

type StorageBlock struct {
	Kind     string `hcl:"kind,optional"`
	Dir      string `hcl:"dir,optional"`
	Format   string `hcl:"format,optional"`
	Compress bool   `hcl:"compress,optional"`
}

type StreamingBlock struct {
	SocketIOURL string `hcl:"socketio_url"`
	Namespace   string `hcl:"namespace,optional"`
	Event       string `hcl:"event,optional"`
	Timeout     string `hcl:"timeout,optional"`
}

// Load parses and validates the job file at path
func Load(path string) (*File, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}
	return decode(file, path)
}

// Parse is Load for an in-memory document. filename is only used in
// diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", filename, diags.Error())
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) (*File, error) {
	var f File
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %s", filename, diags.Error())
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &f, nil
}

// validate fills in defaults and checks everything that can be checked
// without building collaborators
func (f *File) validate() error {
	if f.Device == "" {
		f.Device = "cpu"
	}
	if f.Epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", f.Epochs)
	}
	if f.Model == nil {
		f.Model = &ModelBlock{}
	}
	for i, h := range f.Model.Hidden {
		if h < 1 {
			return fmt.Errorf("model hidden layer %d must have at least 1 unit, got %d", i+1, h)
		}
	}
	if f.Data == nil {
		return errors.New("a data block is required")
	}
	if err := f.Data.validate(); err != nil {
		return err
	}
	if f.Optimizer == nil {
		return errors.New("an optimizer block is required")
	}
	if _, err := f.OptimizerFactory(); err != nil {
		return err
	}
	if _, err := f.SchedulerFactory(); err != nil {
		return err
	}
	if f.Checkpoint == nil {
		def := checkpoints.DefaultConfig()
		f.Checkpoint = &CheckpointBlock{Frequency: def.Frequency, Metric: def.Metric, MetricMode: def.MetricMode}
	}
	if f.Checkpoint.Metric == "" {
		f.Checkpoint.Metric = checkpoints.DefaultConfig().Metric
	}
	if f.Checkpoint.MetricMode == "" {
		f.Checkpoint.MetricMode = checkpoints.DefaultConfig().MetricMode
	}
	if _, err := checkpoints.NewClassicStrategy(f.CheckpointConfig()); err != nil {
		return err
	}
	if f.Storage == nil {
		f.Storage = &StorageBlock{}
	}
	if err := f.Storage.validate(); err != nil {
		return err
	}
	if f.Streaming != nil {
		if _, err := f.buildStreamer(nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *DataBlock) validate() error {
	d.Kind = strings.ToLower(d.Kind)
	switch d.Kind {
	case "spiral":
		if d.Features != 0 && d.Features != 2 {
			return fmt.Errorf("spiral data always has 2 features, got %d", d.Features)
		}
		d.Features = 2
	case "blobs":
		if d.Features == 0 {
			d.Features = 2
		}
	default:
		return unknownKind("data", d.Kind, []string{"spiral", "blobs"})
	}
	if d.Samples < 1 || d.Classes < 2 {
		return fmt.Errorf("data needs at least 1 sample and 2 classes, got %d and %d", d.Samples, d.Classes)
	}
	if d.BatchSize == 0 {
		d.BatchSize = data.DefaultSourceConfig().BatchSize
	}
	if d.ValidationSplit < 0 || d.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in [0, 1), got %g", d.ValidationSplit)
	}
	return nil
}

// ModelConfig returns the driver settings
func (f *File) ModelConfig() train.ModelConfig {
	return train.ModelConfig{Device: f.Device, Epochs: f.Epochs}
}

// CheckpointConfig returns the checkpoint retention settings
func (f *File) CheckpointConfig() checkpoints.Config {
	return checkpoints.Config{
		Frequency:  f.Checkpoint.Frequency,
		Metric:     f.Checkpoint.Metric,
		MetricMode: f.Checkpoint.MetricMode,
		StoreBest:  f.Checkpoint.StoreBest,
	}
}

// BuildSource generates the dataset and splits it into loaders
func (f *File) BuildSource() (*data.SupervisedSource, error) {
	var ds *data.InMemoryDataset
	var err error
	switch f.Data.Kind {
	case "spiral":
		ds, err = data.Spiral(f.Data.Samples, f.Data.Classes, f.Data.Noise, f.Seed)
	case "blobs":
		ds, err = data.Blobs(f.Data.Samples, f.Data.Classes, f.Data.Features, f.Seed)
	default:
		return nil, unknownKind("data", f.Data.Kind, []string{"spiral", "blobs"})
	}
	if err != nil {
		return nil, err
	}
	shuffle := true
	if f.Data.Shuffle != nil {
		shuffle = *f.Data.Shuffle
	}
	return data.NewSourceFromDataset(ds, data.SourceConfig{
		BatchSize:       f.Data.BatchSize,
		ValidationSplit: f.Data.ValidationSplit,
		Shuffle:         shuffle,
		Seed:            f.Seed,
	})
}

// BuildModel builds the classifier sized for the data block
func (f *File) BuildModel() (*models.MLPClassifier, error) {
	return models.NewMLPClassifier(f.Data.Features, f.Model.Hidden, f.Data.Classes)
}
