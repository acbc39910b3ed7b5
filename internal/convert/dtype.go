package convert

import (
	"encoding/binary"
	"fmt"

	"github.com/ilmfmt/ilmc/internal/ilm"
)

// mapDtype translates a safetensors dtype onto the container's tag.
// F32/F16/I8/U8 payloads pass through untouched. BF16 has no tag in the
// format, so its payload is widened to f32.
func mapDtype(dtype string, data []byte) (ilm.Dtype, []byte, error) {
	switch dtype {
	case "F32":
		return ilm.Float32, data, nil
	case "F16":
		return ilm.Float16, data, nil
	case "I8":
		return ilm.Int8, data, nil
	case "U8":
		return ilm.Uint8, data, nil
	case "BF16":
		return ilm.Float32, bf16ToF32(data), nil
	default:
		return 0, nil, fmt.Errorf("%w: unsupported checkpoint dtype %q", ilm.ErrPrecondition, dtype)
	}
}

// bf16ToF32 widens bf16 values: bf16 is the high half of an f32.
func bf16ToF32(b []byte) []byte {
	out := make([]byte, 2*len(b))
	for i := 0; i+2 <= len(b); i += 2 {
		bits := uint32(b[i]) | uint32(b[i+1])<<8
		binary.LittleEndian.PutUint32(out[2*i:], bits<<16)
	}
	return out
}
