package checkpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tsawler/go-train/training"
)

// Format defines the serialization format
type Format int

const (
	FormatJSON Format = iota
	FormatProto
	FormatMsgpack
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProto:
		return "proto"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// Extension returns the file extension for the format, including the dot
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatProto:
		return ".pb"
	case FormatMsgpack:
		return ".msgpack"
	default:
		return ".bin"
	}
}

// ParseFormat converts a format name into a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "proto", "protobuf", "pb":
		return FormatProto, nil
	case "msgpack", "messagepack":
		return FormatMsgpack, nil
	default:
		return 0, fmt.Errorf("unsupported checkpoint format: %q", s)
	}
}

// Checkpoint is the complete persisted state after one epoch: model
// weights, the epoch's metrics and the hidden state needed to resume.
type Checkpoint struct {
	Epoch    int                   `json:"epoch" msgpack:"epoch"`
	Model    string                `json:"model" msgpack:"model"`
	Result   *training.EpochResult `json:"result,omitempty" msgpack:"result,omitempty"`
	Weights  []WeightTensor        `json:"weights" msgpack:"weights"`
	Hidden   *training.HiddenState `json:"hidden,omitempty" msgpack:"hidden,omitempty"`
	Metadata Metadata              `json:"metadata" msgpack:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name" msgpack:"name"`
	Shape []int     `json:"shape" msgpack:"shape"`
	Data  []float64 `json:"data" msgpack:"data"`
}

// Metadata contains checkpoint metadata
type Metadata struct {
	Version     string    `json:"version" msgpack:"version"`
	Framework   string    `json:"framework" msgpack:"framework"`
	CreatedAt   time.Time `json:"created_at" msgpack:"created_at"`
	Description string    `json:"description,omitempty" msgpack:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty" msgpack:"tags,omitempty"`
}

const (
	framework = "go-train"
	version   = "1.0.0"
)

// zstd frame magic number, used to detect compressed payloads on load
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Saver encodes checkpoints in one format, optionally zstd-compressed
type Saver struct {
	format   Format
	compress bool
}

// NewSaver creates a new checkpoint saver for the specified format
func NewSaver(format Format, compress bool) *Saver {
	return &Saver{format: format, compress: compress}
}

// Format returns the encoding format
func (s *Saver) Format() Format { return s.format }

// Extension returns the file extension for saved checkpoints
func (s *Saver) Extension() string {
	if s.compress {
		return s.format.Extension() + ".zst"
	}
	return s.format.Extension()
}

// Marshal encodes a checkpoint, filling in missing metadata
func (s *Saver) Marshal(ck *Checkpoint) ([]byte, error) {
	if ck == nil {
		return nil, fmt.Errorf("cannot encode nil checkpoint")
	}
	if ck.Metadata.Framework == "" {
		ck.Metadata.Framework = framework
		ck.Metadata.Version = version
		ck.Metadata.CreatedAt = time.Now().UTC()
	}

	var payload []byte
	var err error
	switch s.format {
	case FormatJSON:
		payload, err = json.MarshalIndent(ck, "", "  ")
	case FormatProto:
		payload, err = marshalProto(ck)
	case FormatMsgpack:
		payload, err = msgpack.Marshal(ck)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s checkpoint: %w", s.format, err)
	}

	if !s.compress {
		return payload, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

// Unmarshal decodes a checkpoint. Compressed payloads are detected by their
// frame header, so a Saver can read checkpoints written with or without
// compression.
func (s *Saver) Unmarshal(data []byte) (*Checkpoint, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress checkpoint: %w", err)
		}
	}

	var ck Checkpoint
	var err error
	switch s.format {
	case FormatJSON:
		err = json.Unmarshal(data, &ck)
	case FormatProto:
		err = unmarshalProto(data, &ck)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &ck)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s checkpoint: %w", s.format, err)
	}
	return &ck, nil
}

// Save writes a checkpoint to path
func (s *Saver) Save(ck *Checkpoint, path string) error {
	data, err := s.Marshal(ck)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// Load reads a checkpoint from path
func (s *Saver) Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	return s.Unmarshal(data)
}
