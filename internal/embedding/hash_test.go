package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHash_Deterministic(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, []string{"the quick brown fox", "something else"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := h.Embed(ctx, []string{"the quick brown fox"})

	if len(a) != 2 || len(a[0]) != 64 {
		t.Fatalf("shape = %d x %d", len(a), len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("component %d differs between calls", i)
		}
	}
	same := true
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestHash_UnitLength(t *testing.T) {
	h := NewHash(0)
	if h.Dimensions() != DefaultDimensions {
		t.Fatalf("Dimensions = %d, want %d", h.Dimensions(), DefaultDimensions)
	}
	vecs, _ := h.Embed(context.Background(), []string{""})
	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-4 {
		t.Errorf("norm = %f, want 1", math.Sqrt(norm))
	}
}

func TestHash_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHash(8).Embed(ctx, []string{"x"}); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1, -1, 0.25, float32(math.Pi)}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
