// Package tokenizer loads a sentencepiece-style piece table exported as
// JSON and answers the per-id classification queries the container
// encoder needs.
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
)

type pieceType int

const (
	typeNormal pieceType = iota
	typeUnknown
	typeControl
	typeByte
	typeUserDefined
	typeUnused
)

var typeNames = map[string]pieceType{
	"normal":       typeNormal,
	"unknown":      typeUnknown,
	"control":      typeControl,
	"byte":         typeByte,
	"user_defined": typeUserDefined,
	"unused":       typeUnused,
}

type pieceEntry struct {
	Piece string `json:"piece"`
	Type  string `json:"type"`
}

// Vocab is an ordered piece table; index is token id.
type Vocab struct {
	pieces []string
	types  []pieceType
}

// Load reads a JSON array of {"piece": ..., "type": ...} records ordered
// by token id. Types follow the sentencepiece names; user_defined and
// unused pieces answer none of the class predicates and end up stored as
// plain text.
func Load(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []pieceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	v := &Vocab{
		pieces: make([]string, len(entries)),
		types:  make([]pieceType, len(entries)),
	}
	for i, e := range entries {
		pt, ok := typeNames[e.Type]
		if !ok {
			return nil, fmt.Errorf("%s: token %d has unknown piece type %q", path, i, e.Type)
		}
		v.pieces[i] = e.Piece
		v.types[i] = pt
	}
	return v, nil
}

func (v *Vocab) Size() int { return len(v.pieces) }

func (v *Vocab) IsUnknown(id int) bool { return v.types[id] == typeUnknown }

func (v *Vocab) IsControl(id int) bool { return v.types[id] == typeControl }

func (v *Vocab) IsByte(id int) bool { return v.types[id] == typeByte }

func (v *Vocab) Piece(id int) string { return v.pieces[id] }
