// Package vecblob converts embeddings to and from the little-endian float32
// blobs the ingestion pipeline writes into document_embeddings.
package vecblob

import (
	"encoding/binary"
	"fmt"
	"math"
)

const floatSize = 4

func Encode(vec []float32) []byte {
	out := make([]byte, len(vec)*floatSize)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*floatSize:], math.Float32bits(v))
	}
	return out
}

func Decode(blob []byte) ([]float32, error) {
	if len(blob)%floatSize != 0 {
		return nil, fmt.Errorf("embedding blob of %d bytes is not a multiple of %d", len(blob), floatSize)
	}
	out := make([]float32, len(blob)/floatSize)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*floatSize:]))
	}
	return out, nil
}

// Dimension reports how many floats a stored blob of size bytes holds. An
// empty blob is an error: a stored embedding always has at least one float.
func Dimension(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("embedding blob is empty")
	}
	if size%floatSize != 0 {
		return 0, fmt.Errorf("embedding blob of %d bytes is not a multiple of %d", size, floatSize)
	}
	return size / floatSize, nil
}
