package ilm

import (
	"fmt"
	"io"

	"github.com/ilmfmt/ilmc/internal/logger"
)

// Writer emits one container through five ordered phases: open,
// header-reserve, body-emit, offset-patch, tensor stream, close. It keeps
// its own cursor instead of relying on ambient file position, so the same
// logic runs against a real file or an in-memory sink. The sink must
// support seeking; offset backpatching is not optional.
//
// Any failure leaves the sink truncated or corrupt. The writer gives no
// atomicity guarantee; callers wanting temp-file-and-rename wrap it.
type Writer struct {
	ws      io.WriteSeeker
	state   int
	pos     int64
	tensors int
}

const (
	stateOpen    = iota // magic written, header not yet emitted
	stateTensors        // header and blocks written, offsets patched
	stateClosed
	stateFailed
)

// NewWriter writes the magic constant and returns a writer ready for
// Begin.
func NewWriter(ws io.WriteSeeker) (*Writer, error) {
	w := &Writer{ws: ws}
	if err := w.emitU32(Magic); err != nil {
		return nil, err
	}
	return w, nil
}

// Begin encodes the param and vocabulary blocks in memory (their lengths
// go into the header before the blocks land), writes the header with the
// three offset slots reserved, appends both blocks, backpatches the
// offsets, and leaves the cursor at the start of the tensor stream.
func (w *Writer) Begin(p Params, v Vocabulary) error {
	if w.state != stateOpen {
		return fmt.Errorf("%w: Begin on a writer past the header phase", ErrPrecondition)
	}
	paramBlock := encodeParams(p)
	vocabBlock, err := EncodeVocabulary(v)
	if err != nil {
		w.state = stateFailed
		return err
	}

	// Header-reserve: lengths are known now, offsets are skipped and
	// their slot positions recorded for patching.
	var patchAt [3]int64
	patchAt[0] = w.pos
	if err := w.skip(4); err != nil {
		return err
	}
	if err := w.emitU32(uint32(len(paramBlock))); err != nil {
		return err
	}
	patchAt[1] = w.pos
	if err := w.skip(4); err != nil {
		return err
	}
	if err := w.emitU32(uint32(len(vocabBlock))); err != nil {
		return err
	}
	patchAt[2] = w.pos
	if err := w.skip(4); err != nil {
		return err
	}

	// Body-emit: record each block's absolute start as it is reached.
	var offs [3]int64
	offs[0] = w.pos
	if err := w.emit(paramBlock); err != nil {
		return err
	}
	offs[1] = w.pos
	if err := w.emit(vocabBlock); err != nil {
		return err
	}
	offs[2] = w.pos // tensor stream begins here

	// Offset-patch, then return to the end of the file.
	for i := range patchAt {
		if _, err := w.ws.Seek(patchAt[i], io.SeekStart); err != nil {
			w.state = stateFailed
			return err
		}
		if err := writeU32(w.ws, uint32(offs[i])); err != nil {
			w.state = stateFailed
			return err
		}
	}
	end, err := w.ws.Seek(0, io.SeekEnd)
	if err != nil {
		w.state = stateFailed
		return err
	}
	w.pos = end
	w.state = stateTensors
	logger.Log.Debug("container header written",
		"param_offset", offs[0], "param_len", len(paramBlock),
		"vocab_offset", offs[1], "vocab_len", len(vocabBlock),
		"tensor_offset", offs[2])
	return nil
}

// WriteTensor appends one record to the tensor stream. The shape is
// squeezed first; derived tensors are skipped entirely. An unsupported
// dtype or a size mismatch is caught before any bytes are emitted.
func (w *Writer) WriteTensor(name string, shape []int, dtype Dtype, data []byte) error {
	if w.state != stateTensors {
		return fmt.Errorf("%w: WriteTensor outside the tensor phase", ErrPrecondition)
	}
	if Derived(name) {
		logger.Log.Debug("skip derived tensor", "name", name)
		return nil
	}
	rec := &TensorRecord{Name: name, Shape: Squeeze(shape), Dtype: dtype, Data: data}
	if err := rec.validate(); err != nil {
		return err
	}
	logger.Log.Info("write tensor", "name", name, "offset", w.pos, "shape", rec.Shape, "dtype", dtype.String())
	if err := writeTensor(w.ws, rec); err != nil {
		w.state = stateFailed
		return err
	}
	w.pos += int64(recordSize(rec))
	w.tensors++
	return nil
}

// Tensors returns the number of records written so far.
func (w *Writer) Tensors() int { return w.tensors }

// Close seeks to the end of the sink and finalizes the writer. Closing
// the underlying file stays with the caller. Close after a failed phase
// reports the container as unusable.
func (w *Writer) Close() error {
	switch w.state {
	case stateClosed:
		return nil
	case stateFailed:
		return fmt.Errorf("%w: writer failed mid-container; output is unusable", ErrPrecondition)
	case stateOpen:
		return fmt.Errorf("%w: Close before Begin", ErrPrecondition)
	}
	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		w.state = stateFailed
		return err
	}
	w.state = stateClosed
	return nil
}

func (w *Writer) emit(b []byte) error {
	n, err := w.ws.Write(b)
	w.pos += int64(n)
	if err != nil {
		w.state = stateFailed
	}
	return err
}

func (w *Writer) emitU32(v uint32) error {
	var b [4]byte
	putU32(b[:], v)
	return w.emit(b[:])
}

// skip reserves n bytes by seeking past them; the bytes are filled by a
// later patch write.
func (w *Writer) skip(n int64) error {
	if _, err := w.ws.Seek(n, io.SeekCurrent); err != nil {
		w.state = stateFailed
		return err
	}
	w.pos += n
	return nil
}
