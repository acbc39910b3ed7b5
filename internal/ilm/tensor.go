package ilm

import (
	"fmt"
	"io"
	"strings"
)

// Dtype tags a tensor's element type.
type Dtype uint32

const (
	Float32 Dtype = 0
	Float16 Dtype = 1
	Int8    Dtype = 2
	Uint8   Dtype = 3
)

// Size returns the element width in bytes, or 0 for an unknown tag.
func (d Dtype) Size() int {
	switch d {
	case Float32:
		return 4
	case Float16:
		return 2
	case Int8, Uint8:
		return 1
	}
	return 0
}

func (d Dtype) String() string {
	switch d {
	case Float32:
		return "f32"
	case Float16:
		return "f16"
	case Int8:
		return "i8"
	case Uint8:
		return "u8"
	}
	return fmt.Sprintf("dtype(%d)", uint32(d))
}

// derivedSuffixes names tensors that the loader recomputes (rotary
// position frequency caches); they are never persisted.
var derivedSuffixes = []string{"inv_freq"}

// Derived reports whether a tensor with this name is excluded from the
// tensor stream.
func Derived(name string) bool {
	for _, s := range derivedSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Squeeze returns shape with unit dimensions removed. An all-unit shape
// squeezes to rank 0.
func Squeeze(shape []int) []int {
	out := make([]int, 0, len(shape))
	for _, d := range shape {
		if d != 1 {
			out = append(out, d)
		}
	}
	return out
}

// TensorRecord is one named tensor as stored in the stream. Data is the
// raw row-major payload, len(Data) == Elems() * Dtype.Size().
type TensorRecord struct {
	Name  string
	Shape []int
	Dtype Dtype
	Data  []byte
}

// Elems returns the element count implied by the shape (1 for rank 0).
func (t *TensorRecord) Elems() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *TensorRecord) validate() error {
	w := t.Dtype.Size()
	if w == 0 {
		return fmt.Errorf("%w: tensor %q has unsupported dtype %d", ErrPrecondition, t.Name, uint32(t.Dtype))
	}
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: tensor %q has negative dimension %d", ErrPrecondition, t.Name, d)
		}
	}
	if want := t.Elems() * w; len(t.Data) != want {
		return fmt.Errorf("%w: tensor %q payload is %d bytes, want %d", ErrFormat, t.Name, len(t.Data), want)
	}
	return nil
}

func recordSize(t *TensorRecord) int {
	return 12 + 4*len(t.Shape) + len(t.Name) + len(t.Data)
}

// writeTensor emits one record: rank, name length and dtype as a single
// 12-byte run, then the dimensions, the name bytes and the raw payload,
// with no padding. The record is validated before any byte is written.
func writeTensor(w io.Writer, t *TensorRecord) error {
	if err := t.validate(); err != nil {
		return err
	}
	hdr := make([]byte, 12+4*len(t.Shape))
	putU32(hdr[0:], uint32(len(t.Shape)))
	putU32(hdr[4:], uint32(len(t.Name)))
	putU32(hdr[8:], uint32(t.Dtype))
	for i, d := range t.Shape {
		putU32(hdr[12+4*i:], uint32(d))
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := io.WriteString(w, t.Name); err != nil {
		return err
	}
	_, err := w.Write(t.Data)
	return err
}

// readTensor decodes one record. io.EOF at a record boundary means the
// stream ended cleanly; running out mid-record is a format violation.
func readTensor(r io.Reader) (*TensorRecord, error) {
	var lead [12]byte
	if _, err := io.ReadFull(r, lead[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated tensor record: %v", ErrFormat, err)
	}
	rank := int(u32At(lead[:], 0))
	nameLen := int(u32At(lead[:], 4))
	dtype := Dtype(u32At(lead[:], 8))
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: unsupported dtype %d in tensor record", ErrFormat, uint32(dtype))
	}
	rest := make([]byte, 4*rank+nameLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("%w: truncated tensor record: %v", ErrFormat, err)
	}
	t := &TensorRecord{Dtype: dtype, Shape: make([]int, rank)}
	for i := range t.Shape {
		t.Shape[i] = int(u32At(rest, 4*i))
	}
	t.Name = string(rest[4*rank:])
	t.Data = make([]byte, t.Elems()*dtype.Size())
	if _, err := io.ReadFull(r, t.Data); err != nil {
		return nil, fmt.Errorf("%w: tensor %q payload truncated: %v", ErrFormat, t.Name, err)
	}
	return t, nil
}
