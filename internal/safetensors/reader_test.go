package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

// buildCheckpoint assembles a two-tensor safetensors file in memory.
func buildCheckpoint(t *testing.T) []byte {
	t.Helper()
	a := make([]byte, 8*4) // 2x4 f32
	for i := range a {
		a[i] = byte(i)
	}
	b := []byte{1, 2, 3} // 3 u8
	header := map[string]any{
		"__metadata__": map[string]any{"format": "pt"},
		"a.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{2, 4},
			"data_offsets": []int{0, len(a)},
		},
		"b.bias": map[string]any{
			"dtype":        "U8",
			"shape":        []int{3},
			"data_offsets": []int{len(a), len(a) + len(b)},
		},
	}
	hb, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var buf bytes.Buffer
	var lb [8]byte
	binary.LittleEndian.PutUint64(lb[:], uint64(len(hb)))
	buf.Write(lb[:])
	buf.Write(hb)
	buf.Write(a)
	buf.Write(b)
	return buf.Bytes()
}

func checkFile(t *testing.T, f *File) {
	t.Helper()
	if got := f.Names(); !reflect.DeepEqual(got, []string{"a.weight", "b.bias"}) {
		t.Fatalf("names %v", got)
	}
	a := f.Tensors["a.weight"]
	if a.Meta.Dtype != "F32" || !reflect.DeepEqual(a.Meta.Shape, []int64{2, 4}) {
		t.Fatalf("a.weight meta %+v", a.Meta)
	}
	if len(a.Data) != 32 || a.Data[0] != 0 || a.Data[31] != 31 {
		t.Fatalf("a.weight data %v", a.Data)
	}
	b := f.Tensors["b.bias"]
	if !bytes.Equal(b.Data, []byte{1, 2, 3}) {
		t.Fatalf("b.bias data %v", b.Data)
	}
	if _, ok := f.Header["__metadata__"]; ok {
		t.Fatal("__metadata__ leaked into tensor header")
	}
}

func TestOpenPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toy.safetensors")
	if err := os.WriteFile(path, buildCheckpoint(t), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	checkFile(t, f)
}

func TestOpenZstd(t *testing.T) {
	raw := buildCheckpoint(t)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	comp := enc.EncodeAll(raw, nil)
	enc.Close()
	path := filepath.Join(t.TempDir(), "toy.safetensors.zst")
	if err := os.WriteFile(path, comp, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	checkFile(t, f)
}

func TestOpenLZ4(t *testing.T) {
	raw := buildCheckpoint(t)
	var comp bytes.Buffer
	lw := lz4.NewWriter(&comp)
	if _, err := lw.Write(raw); err != nil {
		t.Fatalf("lz4 write: %v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("lz4 close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "toy.safetensors.lz4")
	if err := os.WriteFile(path, comp.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	checkFile(t, f)
}

func TestOpenBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	var lb [8]byte
	binary.LittleEndian.PutUint64(lb[:], 4)
	if err := os.WriteFile(path, append(lb[:], []byte("{{{{")...), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("want parse error on invalid header json")
	}
}
