package safetensors

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

// Minimal safetensors reader for a single file (no zip).
// File layout: [header_len:u64][header_json][tensor_data...]
// Checkpoints compressed as a whole with zstd (.zst) or lz4 (.lz4) are
// decompressed transparently before parsing.

type Header map[string]TensorMeta

type TensorMeta struct {
	Dtype string  `json:"dtype"`
	Shape []int64 `json:"shape"`
	Data  []int64 `json:"data_offsets"`
}

type Tensor struct {
	Meta TensorMeta
	Data []byte
}

type File struct {
	Header  Header
	Tensors map[string]Tensor
}

func Open(path string) (*File, error) {
	switch filepath.Ext(path) {
	case ".zst":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		data, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd checkpoint %s: %w", path, err)
		}
		return parse(bytes.NewReader(data))
	case ".lz4":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(lz4.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("lz4 checkpoint %s: %w", path, err)
		}
		return parse(bytes.NewReader(data))
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parse(f)
	}
}

type readerAt interface {
	io.Reader
	io.ReaderAt
}

func parse(f readerAt) (*File, error) {
	br := bufio.NewReader(f)
	// header length (u64 little endian)
	var lb [8]byte
	if _, err := io.ReadFull(br, lb[:]); err != nil {
		return nil, err
	}
	var hdrLen uint64
	for i := 0; i < 8; i++ {
		hdrLen |= uint64(lb[i]) << (8 * i)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrBytes); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(hdrBytes, &raw); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	// Keep only tensor entries with data_offsets (the header may also
	// carry a __metadata__ record).
	header := make(Header)
	for name, meta := range raw {
		m, _ := meta.(map[string]any)
		if m == nil {
			continue
		}
		if _, ok := m["data_offsets"]; !ok {
			continue
		}
		dt, _ := m["dtype"].(string)
		shapeAny, _ := m["shape"].([]any)
		shape := make([]int64, 0, len(shapeAny))
		for _, v := range shapeAny {
			shape = append(shape, int64(v.(float64)))
		}
		doffsAny, _ := m["data_offsets"].([]any)
		if len(doffsAny) < 2 {
			continue
		}
		doffs := []int64{int64(doffsAny[0].(float64)), int64(doffsAny[1].(float64))}
		header[name] = TensorMeta{Dtype: dt, Shape: shape, Data: doffs}
	}
	// Load tensors; offsets are relative to the end of the header.
	pos := int64(8 + hdrLen)
	res := make(map[string]Tensor)
	for name, meta := range header {
		start, end := meta.Data[0], meta.Data[1]
		size := end - start
		if size < 0 {
			return nil, fmt.Errorf("tensor %s: negative size", name)
		}
		buf := make([]byte, size)
		if size > 0 {
			if _, err := f.ReadAt(buf, pos+start); err != nil {
				return nil, err
			}
		}
		res[name] = Tensor{Meta: meta, Data: buf}
	}
	return &File{Header: header, Tensors: res}, nil
}

// Names returns the tensor names in sorted order, for deterministic
// iteration.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
