// Package safetensors liest und schreibt Gewichts-Snapshots im
// safetensors-Format.
//
// Enthaelt:
// - Write/WriteFile: Parameter als F32, F16 oder BF16 speichern
// - Read/ReadFile: Tensoren und Metadaten lesen
// - LoadInto: Gewichte in bestehende Parameter laden (Namen und Shapes muessen passen)
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/cortml/cort/ml"
)

// metadataKey is the reserved header entry for string metadata.
const metadataKey = "__metadata__"

// maxHeaderSize bounds the JSON header to guard against corrupt files.
const maxHeaderSize = 100 << 20

var ErrShapeMismatch = errors.New("safetensors: shape mismatch")

type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Write encodes params to w using dtype for every tensor.
func Write(w io.Writer, params []*ml.Parameter, dtype ml.DType, metadata map[string]string) error {
	if dtype.Size() == 0 {
		return fmt.Errorf("safetensors: unsupported dtype %s", dtype)
	}

	header := make(map[string]any, len(params)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, p := range params {
		if _, ok := header[p.Name]; ok {
			return fmt.Errorf("safetensors: duplicate tensor %q", p.Name)
		}

		size := int64(p.Value.Len() * dtype.Size())
		header[p.Name] = tensorInfo{
			DType:       dtype.String(),
			Shape:       p.Value.Shape(),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	bts, err := json.Marshal(header)
	if err != nil {
		return err
	}

	// pad the header so the data section is 8 byte aligned
	if pad := len(bts) % 8; pad != 0 {
		bts = append(bts, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}

	if _, err := w.Write(bts); err != nil {
		return err
	}

	for _, p := range params {
		if _, err := w.Write(encode(p.Value.Floats(), dtype)); err != nil {
			return fmt.Errorf("write %s: %w", p.Name, err)
		}
	}

	return nil
}

// WriteFile writes params to path atomically, creating parent directories.
func WriteFile(path string, params []*ml.Parameter, dtype ml.DType, metadata map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".weights-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := Write(f, params, dtype, metadata); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// Read decodes every tensor in r.
func Read(r io.Reader) (map[string]*ml.Tensor, map[string]string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, nil, fmt.Errorf("safetensors: read header size: %w", err)
	}

	if n > maxHeaderSize {
		return nil, nil, fmt.Errorf("safetensors: header too large (%d bytes)", n)
	}

	bts := make([]byte, n)
	if _, err := io.ReadFull(r, bts); err != nil {
		return nil, nil, fmt.Errorf("safetensors: read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bts, &raw); err != nil {
		return nil, nil, fmt.Errorf("safetensors: decode header: %w", err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("safetensors: decode metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	infos := make(map[string]tensorInfo, len(raw))
	names := make([]string, 0, len(raw))
	for name, m := range raw {
		var info tensorInfo
		if err := json.Unmarshal(m, &info); err != nil {
			return nil, nil, fmt.Errorf("safetensors: decode %s: %w", name, err)
		}
		infos[name] = info
		names = append(names, name)
	}

	slices.SortFunc(names, func(a, b string) int {
		return int(infos[a].DataOffsets[0] - infos[b].DataOffsets[0])
	})

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]*ml.Tensor, len(names))
	for _, name := range names {
		info := infos[name]
		dtype, err := ml.ParseDType(info.DType)
		if err != nil {
			return nil, nil, fmt.Errorf("safetensors: %s: %w", name, err)
		}

		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end > int64(len(data)) || begin > end {
			return nil, nil, fmt.Errorf("safetensors: %s: offsets %v out of range", name, info.DataOffsets)
		}

		values := decode(data[begin:end], dtype)
		if len(values) != shapeSize(info.Shape) {
			return nil, nil, fmt.Errorf("safetensors: %s: %d values for shape %v", name, len(values), info.Shape)
		}

		tensors[name] = ml.NewTensor(values, info.Shape...)
	}

	return tensors, metadata, nil
}

// ReadFile reads the safetensors file at path.
func ReadFile(path string) (map[string]*ml.Tensor, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	return Read(f)
}

// LoadInto copies the weights stored at path into params. Every parameter
// must be present with an identical shape.
func LoadInto(path string, params []*ml.Parameter) error {
	tensors, _, err := ReadFile(path)
	if err != nil {
		return err
	}

	for _, p := range params {
		t, ok := tensors[p.Name]
		if !ok {
			return fmt.Errorf("safetensors: %s: tensor %q not found", path, p.Name)
		}

		if !t.SameShape(p.Value) {
			return fmt.Errorf("%w: %s has %v, want %v", ErrShapeMismatch, p.Name, t.Shape(), p.Value.Shape())
		}

		copy(p.Value.Floats(), t.Floats())
	}

	return nil
}

func encode(values []float64, dtype ml.DType) []byte {
	switch dtype {
	case ml.DTypeF16:
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
		return out
	case ml.DTypeBF16:
		f32s := make([]float32, len(values))
		for i, v := range values {
			f32s[i] = float32(v)
		}
		return bfloat16.EncodeFloat32(f32s)
	default:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
		}
		return out
	}
}

func decode(bts []byte, dtype ml.DType) []float64 {
	switch dtype {
	case ml.DTypeF16:
		out := make([]float64, len(bts)/2)
		for i := range out {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(bts[2*i:])).Float32())
		}
		return out
	case ml.DTypeBF16:
		f32s := bfloat16.DecodeFloat32(bts)
		out := make([]float64, len(f32s))
		for i, f := range f32s {
			out[i] = float64(f)
		}
		return out
	default:
		out := make([]float64, len(bts)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(bts[4*i:])))
		}
		return out
	}
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
