package lexnum

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"
)

func TestEncodeOrdering(t *testing.T) {
	values := []float64{
		math.Inf(-1),
		-math.MaxFloat64,
		-1e15,
		-1234.5,
		-1,
		-0.001,
		-math.SmallestNonzeroFloat64,
		0,
		math.SmallestNonzeroFloat64,
		0.001,
		1,
		1234.5,
		1e15,
		math.MaxFloat64,
		math.Inf(1),
	}
	for i := 1; i < len(values); i++ {
		a, b := Encode(values[i-1]), Encode(values[i])
		if strings.Compare(a, b) >= 0 {
			t.Errorf("Encode(%v) = %q does not sort before Encode(%v) = %q", values[i-1], a, values[i], b)
		}
	}
}

func TestEncodeWidth(t *testing.T) {
	for _, v := range []float64{0, -1, 1, math.Inf(1), math.Inf(-1), 1e-300} {
		enc := Encode(v)
		if len(enc) != EncodedLen {
			t.Errorf("Encode(%v) length = %d, want %d", v, len(enc), EncodedLen)
		}
		for i := 0; i < len(enc); i++ {
			c := enc[i]
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Errorf("Encode(%v) contains non-hex byte %q", v, c)
			}
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 0.5, -0.5, 1234.5, -1e300, 1e300, math.Inf(1), math.Inf(-1)}
	for _, v := range values {
		got, err := Decode(Encode(v))
		if err != nil {
			t.Fatalf("Decode(Encode(%v)): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip of %v = %v", v, got)
		}
	}
}

func TestNegativeZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	if Encode(negZero) != Encode(0) {
		t.Errorf("Encode(-0) = %q, Encode(0) = %q, want equal", Encode(negZero), Encode(0))
	}
	got, err := Decode(Encode(negZero))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 0 || math.Signbit(got) {
		t.Errorf("Decode(Encode(-0)) = %v, want +0", got)
	}
}

func TestRandomRoundTripAndOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 11))

	values := make([]float64, 0, 1000)
	for len(values) < cap(values) {
		v := math.Float64frombits(rng.Uint64())
		if math.IsNaN(v) {
			continue
		}
		if v == 0 {
			v = 0 // collapse -0 so sorted values stay strictly increasing
		}
		values = append(values, v)
	}

	for _, v := range values {
		got, err := Decode(Encode(v))
		if err != nil {
			t.Fatalf("Decode(Encode(%v)): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip of %v = %v", v, got)
		}
	}

	sort.Float64s(values)
	for i := 1; i < len(values); i++ {
		if values[i-1] == values[i] {
			continue
		}
		a, b := Encode(values[i-1]), Encode(values[i])
		if strings.Compare(a, b) >= 0 {
			t.Fatalf("Encode(%v) = %q does not sort before Encode(%v) = %q", values[i-1], a, values[i], b)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode("short"); err == nil {
		t.Error("Expected error for wrong-length input, got nil")
	}
	if _, err := Decode("zzzzzzzzzzzzzzzz"); err == nil {
		t.Error("Expected error for non-hex input, got nil")
	}
}
