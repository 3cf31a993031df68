package classifier

import (
	"fmt"
	"math"

	"github.com/scrypster/notouch/pkg/types"
)

// DistanceFunc measures the distance between two embeddings of equal length.
// Smaller is closer.
type DistanceFunc func(a, b types.Embedding) float64

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b types.Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Cosine returns 1 - cosine similarity. A zero vector has similarity 0 with
// everything, so its distance is 1.
func Cosine(a, b types.Embedding) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// DistanceFor returns the distance function for a metric.
func DistanceFor(metric types.DistanceMetric) (DistanceFunc, error) {
	switch metric {
	case types.MetricEuclidean:
		return Euclidean, nil
	case types.MetricCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q", metric)
	}
}
