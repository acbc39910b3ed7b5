package ilm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// unknownPiece is the placeholder text stored for the unknown token:
// U+2047 (double question mark) between two spaces.
const unknownPiece = " ⁇ "

// wordBoundary is the sentencepiece marker for a preceding space
// (U+2581, LOWER ONE EIGHTH BLOCK).
const wordBoundary = "▁"

// Vocabulary is the query surface the encoder needs from a tokenizer.
// Entry i corresponds to token id i; order is load-bearing.
type Vocabulary interface {
	Size() int
	IsUnknown(id int) bool
	IsControl(id int) bool
	IsByte(id int) bool
	Piece(id int) string
}

// VocabEntry is one decoded vocabulary entry. The wire form is lossy:
// control entries and zero-length text entries both decode to empty Text,
// and an unknown entry is indistinguishable from text equal to the
// placeholder.
type VocabEntry struct {
	Text string
}

// EncodeVocabulary flattens v into one contiguous vocabulary block, one
// [u32 length][bytes] record per token id. Entries are classified in
// priority order unknown, control, byte, text; the first match wins.
func EncodeVocabulary(v Vocabulary) ([]byte, error) {
	out := make([]byte, 0, v.Size()*8)
	for id := 0; id < v.Size(); id++ {
		switch {
		case v.IsUnknown(id):
			out = appendEntry(out, []byte(unknownPiece))
		case v.IsControl(id):
			out = appendEntry(out, nil)
		case v.IsByte(id):
			bv, err := byteTokenValue(v.Piece(id))
			if err != nil {
				return nil, fmt.Errorf("token %d: %w", id, err)
			}
			out = appendEntry(out, []byte{bv})
		default:
			text := strings.ReplaceAll(v.Piece(id), wordBoundary, " ")
			out = appendEntry(out, []byte(text))
		}
	}
	return out, nil
}

func appendEntry(dst, payload []byte) []byte {
	var b [4]byte
	putU32(b[:], uint32(len(payload)))
	dst = append(dst, b[:]...)
	return append(dst, payload...)
}

// byteTokenValue extracts the raw byte from a piece of the exact form
// <0xXX>. Any other length means the tokenizer is incompatible with the
// format, which is fatal for the whole conversion.
func byteTokenValue(piece string) (byte, error) {
	if utf8.RuneCountInString(piece) != 6 {
		return 0, fmt.Errorf("%w: byte token piece %q is not 6 characters", ErrFormat, piece)
	}
	v, err := strconv.ParseUint(piece[3:5], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: byte token piece %q: %v", ErrFormat, piece, err)
	}
	return byte(v), nil
}

// DecodeVocabulary splits a vocabulary block back into entries. See the
// VocabEntry note on what is recoverable.
func DecodeVocabulary(block []byte) ([]VocabEntry, error) {
	var entries []VocabEntry
	off := 0
	for off < len(block) {
		if off+4 > len(block) {
			return nil, fmt.Errorf("%w: vocabulary block truncated at entry %d", ErrFormat, len(entries))
		}
		n := int(u32At(block, off))
		off += 4
		if n < 0 || off+n > len(block) {
			return nil, fmt.Errorf("%w: vocabulary entry %d declares %d bytes, %d remain", ErrFormat, len(entries), n, len(block)-off)
		}
		entries = append(entries, VocabEntry{Text: string(block[off : off+n])})
		off += n
	}
	return entries, nil
}
