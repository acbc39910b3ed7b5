package ilm

import (
	"encoding/binary"
	"io"
)

// Every integer field in the container is a 4-byte little-endian unsigned
// value. All encoding and decoding of them routes through this file, so
// width and endianness are defined in exactly one place.

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

func u32At(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	putU32(b[:], v)
	_, err := w.Write(b[:])
	return err
}
