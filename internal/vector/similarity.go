// Package vector provides similarity math and the on-disk encoding for embedding vectors.
package vector

import (
	"math"
	"sort"
)

// InnerProduct returns the inner product of two vectors, or 0 when the dimensions differ.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeL2 scales x in place to unit length. Zero vectors are left unchanged.
func NormalizeL2(x []float32) {
	norm := L2Norm(x)
	if norm == 0 {
		return
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
}

// CosineDistance returns 1 - cosine similarity, in [0, 2]. Mismatched or zero vectors are
// treated as orthogonal (distance 1).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	sim := InnerProduct(a, b) / (na * nb)
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}

// Candidate is one scored row considered by a nearest-neighbour scan.
type Candidate struct {
	ChunkIndex int
	Distance   float64
	Position   int
}

// TopK sorts candidates by ascending distance, breaking ties by chunk index, and keeps at
// most k of them.
func TopK(candidates []Candidate, k int) []Candidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}
