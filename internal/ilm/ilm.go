// Package ilm implements the ILM model container: a flat binary file
// carrying a model's hyperparameters, its tokenizer vocabulary and a
// stream of named tensors behind a three-offset header. The file is
// produced in one writer pass and read back without external metadata.
package ilm

import (
	"errors"
	"fmt"
)

// Magic identifies an ILM container (u32 little-endian at offset 0).
const Magic uint32 = 0x0123456

// Header layout. The tensor stream has no length field; it runs to EOF.
const (
	posMagic        = 0
	posParamOffset  = 4
	posParamLength  = 8
	posVocabOffset  = 12
	posVocabLength  = 16
	posTensorOffset = 20
	headerSize      = 24
)

var (
	// ErrFormat reports a malformed container or tokenizer piece:
	// bad magic, truncated block, payload size mismatch, invalid byte
	// token. Always fatal, never silently corrected.
	ErrFormat = errors.New("ilm: format violation")

	// ErrPrecondition reports API misuse or inconsistent collaborator
	// input, detected before any output bytes are mutated.
	ErrPrecondition = errors.New("ilm: precondition violation")
)

// Params is the fixed hyperparameter record. There are no field names on
// the wire; order is the contract.
type Params struct {
	Embd     uint32
	Heads    uint32
	Layers   uint32
	FFHidden uint32
	Vocab    uint32
}

const paramBlockSize = 5 * 4

func encodeParams(p Params) []byte {
	b := make([]byte, paramBlockSize)
	putU32(b[0:], p.Embd)
	putU32(b[4:], p.Heads)
	putU32(b[8:], p.Layers)
	putU32(b[12:], p.FFHidden)
	putU32(b[16:], p.Vocab)
	return b
}

func decodeParams(b []byte) (Params, error) {
	if len(b) < paramBlockSize {
		return Params{}, fmt.Errorf("%w: param block is %d bytes, want %d", ErrFormat, len(b), paramBlockSize)
	}
	return Params{
		Embd:     u32At(b, 0),
		Heads:    u32At(b, 4),
		Layers:   u32At(b, 8),
		FFHidden: u32At(b, 12),
		Vocab:    u32At(b, 16),
	}, nil
}

// Offsets are the raw header fields of an opened container.
type Offsets struct {
	ParamOffset  uint32
	ParamLength  uint32
	VocabOffset  uint32
	VocabLength  uint32
	TensorOffset uint32
}
