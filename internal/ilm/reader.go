package ilm

import (
	"fmt"
	"io"
	"os"
)

// File is an opened container. It never mutates the source; independent
// File instances over separately opened sources can read the same
// container concurrently, each with its own cursor.
type File struct {
	r      io.ReadSeeker
	offs   Offsets
	closer io.Closer
}

// Open validates the magic and reads the three (offset, length) pairs
// from their fixed header positions.
func Open(r io.ReadSeeker) (*File, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrFormat, err)
	}
	if got := u32At(hdr[:], posMagic); got != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrFormat, got)
	}
	return &File{
		r: r,
		offs: Offsets{
			ParamOffset:  u32At(hdr[:], posParamOffset),
			ParamLength:  u32At(hdr[:], posParamLength),
			VocabOffset:  u32At(hdr[:], posVocabOffset),
			VocabLength:  u32At(hdr[:], posVocabLength),
			TensorOffset: u32At(hdr[:], posTensorOffset),
		},
	}, nil
}

// OpenFile opens the container at path. Close releases the file handle.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c, err := Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// Offsets returns the raw header fields.
func (f *File) Offsets() Offsets { return f.offs }

// Params decodes the fixed five-field record at the param offset.
func (f *File) Params() (Params, error) {
	b, err := f.block(f.offs.ParamOffset, f.offs.ParamLength)
	if err != nil {
		return Params{}, err
	}
	return decodeParams(b)
}

// Vocabulary decodes the vocabulary block. The entry kinds are not
// recoverable from the wire form; see VocabEntry.
func (f *File) Vocabulary() ([]VocabEntry, error) {
	b, err := f.block(f.offs.VocabOffset, f.offs.VocabLength)
	if err != nil {
		return nil, err
	}
	return DecodeVocabulary(b)
}

// Tensors seeks to the tensor offset and returns a forward-only iterator
// over the stream. The iterator shares the File's source; interleaving
// other reads on the same File invalidates it. Call Tensors again to
// rescan from the start.
func (f *File) Tensors() (*TensorIterator, error) {
	if _, err := f.r.Seek(int64(f.offs.TensorOffset), io.SeekStart); err != nil {
		return nil, err
	}
	return &TensorIterator{r: f.r}, nil
}

func (f *File) block(off, n uint32) ([]byte, error) {
	if _, err := f.r.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(f.r, b); err != nil {
		return nil, fmt.Errorf("%w: block at offset %d truncated: %v", ErrFormat, off, err)
	}
	return b, nil
}

// TensorIterator scans tensor records sequentially until the source is
// exhausted.
type TensorIterator struct {
	r   io.Reader
	err error
}

// Next returns the next record. io.EOF marks the clean end of the
// stream; any other error is sticky.
func (it *TensorIterator) Next() (*TensorRecord, error) {
	if it.err != nil {
		return nil, it.err
	}
	t, err := readTensor(it.r)
	if err != nil {
		it.err = err
		return nil, err
	}
	return t, nil
}
