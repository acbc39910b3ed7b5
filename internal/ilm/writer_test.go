package ilm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// memFile is an in-memory WriteSeeker/ReadSeeker with sparse-seek
// semantics (seeking past the end and writing later zero-fills the gap),
// so the writer runs against it exactly as against a file.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var p int64
	switch whence {
	case io.SeekStart:
		p = offset
	case io.SeekCurrent:
		p = m.pos + offset
	case io.SeekEnd:
		p = int64(len(m.buf)) + offset
	}
	if p < 0 {
		return 0, errors.New("negative seek")
	}
	m.pos = p
	return p, nil
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

var testParams = Params{Embd: 64, Heads: 4, Layers: 2, FFHidden: 256, Vocab: 4}

func newTestVocab() *testVocab {
	return &testVocab{
		pieces:  []string{"<unk>", "<s>", "<0x0A>", "▁the"},
		unknown: map[int]bool{0: true},
		control: map[int]bool{1: true},
		bytetok: map[int]bool{2: true},
	}
}

func writeContainer(t *testing.T, sink io.WriteSeeker, tensors int) {
	t.Helper()
	w, err := NewWriter(sink)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Begin(testParams, newTestVocab()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < tensors; i++ {
		data := bytes.Repeat([]byte{byte(i)}, 3*4)
		if err := w.WriteTensor(fmt.Sprintf("layer.%d.weight", i), []int{3}, Float32, data); err != nil {
			t.Fatalf("write tensor %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOffsetCorrectness(t *testing.T) {
	for _, tensors := range []int{0, 1, 5} {
		m := &memFile{}
		writeContainer(t, m, tensors)

		f, err := Open(bytes.NewReader(m.buf))
		if err != nil {
			t.Fatalf("%d tensors: open: %v", tensors, err)
		}
		offs := f.Offsets()
		if offs.ParamOffset != headerSize {
			t.Fatalf("%d tensors: param offset %d, want %d", tensors, offs.ParamOffset, headerSize)
		}
		if offs.ParamLength != paramBlockSize {
			t.Fatalf("%d tensors: param length %d", tensors, offs.ParamLength)
		}
		if offs.VocabOffset != offs.ParamOffset+offs.ParamLength {
			t.Fatalf("%d tensors: vocab offset %d", tensors, offs.VocabOffset)
		}
		if offs.TensorOffset != offs.VocabOffset+offs.VocabLength {
			t.Fatalf("%d tensors: tensor offset %d", tensors, offs.TensorOffset)
		}

		// Seeking to each offset lands exactly on the block: the param
		// block decodes, and the first tensor record starts at the
		// tensor offset.
		p, err := f.Params()
		if err != nil {
			t.Fatalf("%d tensors: params: %v", tensors, err)
		}
		if p != testParams {
			t.Fatalf("%d tensors: params %+v", tensors, p)
		}
		entries, err := f.Vocabulary()
		if err != nil {
			t.Fatalf("%d tensors: vocabulary: %v", tensors, err)
		}
		if len(entries) != 4 {
			t.Fatalf("%d tensors: want 4 vocab entries, got %d", tensors, len(entries))
		}
		got, err := readTensorsAll(f)
		if err != nil {
			t.Fatalf("%d tensors: scan: %v", tensors, err)
		}
		if len(got) != tensors {
			t.Fatalf("want %d tensors, got %d", tensors, len(got))
		}
	}
}

func readTensorsAll(f *File) ([]*TensorRecord, error) {
	it, err := f.Tensors()
	if err != nil {
		return nil, err
	}
	var out []*TensorRecord
	for {
		rec, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func TestSqueezeInvariant(t *testing.T) {
	m := &memFile{}
	w, err := NewWriter(m)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Begin(testParams, newTestVocab()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.WriteTensor("w", []int{1, 4, 1, 8}, Float32, make([]byte, 32*4)); err != nil {
		t.Fatalf("write tensor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	f, err := Open(bytes.NewReader(m.buf))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	recs, err := readTensorsAll(f)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("want 1 tensor, got %d", len(recs))
	}
	if !reflect.DeepEqual(recs[0].Shape, []int{4, 8}) {
		t.Fatalf("stored shape %v, want [4 8]", recs[0].Shape)
	}
	if len(recs[0].Data) != 32*4 {
		t.Fatalf("payload %d bytes, want %d", len(recs[0].Data), 32*4)
	}
}

func TestDerivedExclusion(t *testing.T) {
	m := &memFile{}
	w, err := NewWriter(m)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Begin(testParams, newTestVocab()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	names := []string{"layer.3.attention.wq.weight", "layer.3.rotary.inv_freq", "layer.3.attention.wk.weight"}
	for _, name := range names {
		if err := w.WriteTensor(name, []int{2}, Float32, make([]byte, 8)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	f, err := Open(bytes.NewReader(m.buf))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	recs, err := readTensorsAll(f)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var got []string
	for _, r := range recs {
		got = append(got, r.Name)
	}
	want := []string{"layer.3.attention.wq.weight", "layer.3.attention.wk.weight"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stream names %v, want %v", got, want)
	}
	if w.Tensors() != 2 {
		t.Fatalf("writer counted %d records, want 2", w.Tensors())
	}
}

// TestEndToEndFile writes a minimal complete container: params
// {4,1,1,8,3}, vocabulary [Control, Text("hi"), Byte(0x41)], one f32
// tensor "w" of shape [2,2] with 16 zero bytes. Expected layout:
//
//	header 24 + params 20 + vocab (4+0 + 4+2 + 4+1 = 15)
//	+ tensor (12 lead + 8 dims + 1 name + 16 payload = 37) = 96 bytes.
func TestEndToEndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ilm")
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	params := Params{Embd: 4, Heads: 1, Layers: 1, FFHidden: 8, Vocab: 3}
	vocab := &testVocab{
		pieces:  []string{"<s>", "hi", "<0x41>"},
		control: map[int]bool{0: true},
		bytetok: map[int]bool{2: true},
	}
	w, err := NewWriter(out)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Begin(params, vocab); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.WriteTensor("w", []int{2, 2}, Float32, make([]byte, 16)); err != nil {
		t.Fatalf("write tensor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() != 96 {
		t.Fatalf("file is %d bytes, want 96", fi.Size())
	}

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	gotParams, err := f.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if gotParams != params {
		t.Fatalf("params %+v, want %+v", gotParams, params)
	}
	entries, err := f.Vocabulary()
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 vocab entries, got %d", len(entries))
	}
	if entries[0].Text != "" || entries[1].Text != "hi" || entries[2].Text != "A" {
		t.Fatalf("vocab entries %+v", entries)
	}
	recs, err := readTensorsAll(f)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("want 1 tensor, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Name != "w" || rec.Dtype != Float32 || !reflect.DeepEqual(rec.Shape, []int{2, 2}) {
		t.Fatalf("tensor %+v", rec)
	}
	if !bytes.Equal(rec.Data, make([]byte, 16)) {
		t.Fatalf("payload not 16 zero bytes")
	}
}

func TestWriterMisuse(t *testing.T) {
	m := &memFile{}
	w, err := NewWriter(m)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteTensor("w", []int{2}, Float32, make([]byte, 8)); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("tensor before Begin: want ErrPrecondition, got %v", err)
	}
	if err := w.Close(); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("close before Begin: want ErrPrecondition, got %v", err)
	}
	if err := w.Begin(testParams, newTestVocab()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Begin(testParams, newTestVocab()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("double Begin: want ErrPrecondition, got %v", err)
	}

	// An unsupported dtype is caught before anything hits the sink.
	before := len(m.buf)
	if err := w.WriteTensor("w", []int{2}, Dtype(7), make([]byte, 8)); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("bad dtype: want ErrPrecondition, got %v", err)
	}
	if len(m.buf) != before {
		t.Fatalf("sink grew by %d bytes on rejected tensor", len(m.buf)-before)
	}
}

func TestOpenBadMagic(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte("GGUF\x03\x00\x00\x00 not an ilm container....")))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("want ErrFormat, got %v", err)
	}
	_, err = Open(bytes.NewReader([]byte{0x56, 0x34}))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("short file: want ErrFormat, got %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	m := &memFile{}
	writeContainer(t, m, 3)
	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			f, err := Open(bytes.NewReader(m.buf))
			if err != nil {
				done <- err
				return
			}
			recs, err := readTensorsAll(f)
			if err == nil && len(recs) != 3 {
				err = fmt.Errorf("got %d tensors", len(recs))
			}
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("reader %d: %v", i, err)
		}
	}
}
