package vector

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"mismatched", []float32{1, 0}, []float32{1, 0, 0}, 1},
		{"zero", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineDistance = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(L2Norm(v)-1) > 1e-6 {
		t.Errorf("norm after normalize = %f", L2Norm(v))
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestTopK(t *testing.T) {
	candidates := []Candidate{
		{ChunkIndex: 3, Distance: 0.5},
		{ChunkIndex: 1, Distance: 0.1},
		{ChunkIndex: 2, Distance: 0.1},
		{ChunkIndex: 0, Distance: 0.9},
	}
	top := TopK(candidates, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3, got %d", len(top))
	}
	want := []int{1, 2, 3}
	for i, c := range top {
		if c.ChunkIndex != want[i] {
			t.Errorf("position %d: chunk %d, want %d", i, c.ChunkIndex, want[i])
		}
	}
	if TopK(candidates, 0) != nil {
		t.Error("k=0 should return nil")
	}
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	blob := Encode(in)
	if len(blob) != 12 {
		t.Fatalf("blob length = %d", len(blob))
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: got %f, want %f", i, out[i], in[i])
		}
	}
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
