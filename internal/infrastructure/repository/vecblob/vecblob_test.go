package vecblob

import (
	"math"
	"testing"
)

func TestDecodeReadsLittleEndianFloats(t *testing.T) {
	// 1.0 = 0x3f800000, -2.0 = 0xc0000000
	blob := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != -2 {
		t.Fatalf("unexpected vector %v", got)
	}
}

func TestEncodeDecodePreservesBits(t *testing.T) {
	in := []float32{0.1, -3.5, float32(math.Inf(1)), 0}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := range in {
		if math.Float32bits(in[i]) != math.Float32bits(out[i]) {
			t.Fatalf("index %d: %v != %v", i, in[i], out[i])
		}
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}

func TestDimension(t *testing.T) {
	if _, err := Dimension(5); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
	if _, err := Dimension(0); err == nil {
		t.Fatalf("expected error for empty blob")
	}
	if n, err := Dimension(16); err != nil || n != 4 {
		t.Fatalf("Dimension() = %d, %v", n, err)
	}
}
