package types

// DistanceMetric selects how distances between embeddings are measured.
type DistanceMetric string

const (
	// MetricEuclidean is the L2 distance
	MetricEuclidean DistanceMetric = "euclidean"

	// MetricCosine is 1 - cosine similarity
	MetricCosine DistanceMetric = "cosine"
)

// ValidDistanceMetrics contains all supported metrics
var ValidDistanceMetrics = []DistanceMetric{
	MetricEuclidean,
	MetricCosine,
}

// IsValidDistanceMetric checks if the given metric is supported.
func IsValidDistanceMetric(m DistanceMetric) bool {
	for _, valid := range ValidDistanceMetrics {
		if m == valid {
			return true
		}
	}
	return false
}

// Neighbor is one of the k nearest stored examples for a query.
type Neighbor struct {
	Label    Label   `json:"label"`
	Distance float64 `json:"distance"`
}

// ClassificationResult is produced per classification call and never persisted.
type ClassificationResult struct {
	// Label is the predicted class
	Label Label `json:"label"`

	// Confidence is the fraction of the k nearest neighbors carrying Label
	Confidence float64 `json:"confidence"`

	// Confidences holds the vote fraction for every label present in the store.
	// Labels with no neighbor among the k nearest report 0.
	Confidences map[Label]float64 `json:"confidences"`

	// K is the number of neighbors actually examined: min(k, stored examples)
	K int `json:"k"`

	// Neighbors lists the k nearest examples ordered by ascending distance
	Neighbors []Neighbor `json:"neighbors"`
}
