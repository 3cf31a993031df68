// Package classifier implements the online k-nearest-neighbor classifier
// that answers class-membership queries against an example store.
package classifier

import (
	"fmt"
	"slices"

	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

// DefaultK is the number of neighbors examined when none is configured.
const DefaultK = 3

// KNN classifies embeddings by majority vote among the k nearest stored
// examples. It holds no state of its own: every Predict call reads the store
// as it is at the moment of the call.
type KNN struct {
	store    storage.ExampleStore
	metric   types.DistanceMetric
	distance DistanceFunc
}

// New creates a classifier over store. An empty metric selects euclidean.
func New(store storage.ExampleStore, metric types.DistanceMetric) (*KNN, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: example store is required", storage.ErrInvalidInput)
	}
	if metric == "" {
		metric = types.MetricEuclidean
	}
	fn, err := DistanceFor(metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	return &KNN{store: store, metric: metric, distance: fn}, nil
}

// Metric returns the configured distance metric.
func (c *KNN) Metric() types.DistanceMetric {
	return c.metric
}

// candidate is one stored example scored against the query.
// rank is its position in store insertion order.
type candidate struct {
	label    types.Label
	distance float64
	rank     int
}

// labelVote accumulates neighbour votes for one label.
type labelVote struct {
	label     types.Label
	votes     int
	sumDist   float64
	firstRank int // position of the label's nearest neighbour in the k list
}

// Predict returns the majority label among the k nearest examples.
//
// Ties between equally distant examples go to the one inserted first. Ties
// between labels with equal votes go to the label whose neighbours have the
// smallest mean distance, then to the label of the nearest neighbour.
// When fewer than k examples are stored, all of them are examined and
// confidence is computed over that smaller count.
func (c *KNN) Predict(query types.Embedding, k int) (*types.ClassificationResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", storage.ErrInvalidInput, k)
	}

	// Read the snapshot once so dimension checks and distances agree.
	var candidates []candidate
	labels := make(map[types.Label]struct{})
	dim := -1
	for label, embedding := range c.store.AllExamples() {
		if dim == -1 {
			dim = len(embedding)
			if len(query) != dim {
				return nil, fmt.Errorf("%w: query length (%d) does not match stored dimension (%d)",
					storage.ErrDimensionMismatch, len(query), dim)
			}
		}
		candidates = append(candidates, candidate{
			label:    label,
			distance: c.distance(query, embedding),
			rank:     len(candidates),
		})
		labels[label] = struct{}{}
	}
	if len(candidates) == 0 {
		return nil, storage.ErrEmptyStore
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		default:
			return 0
		}
	})

	effectiveK := min(k, len(candidates))
	nearest := candidates[:effectiveK]

	votes := make(map[types.Label]*labelVote)
	var order []*labelVote
	for i, n := range nearest {
		v, ok := votes[n.label]
		if !ok {
			v = &labelVote{label: n.label, firstRank: i}
			votes[n.label] = v
			order = append(order, v)
		}
		v.votes++
		v.sumDist += n.distance
	}

	best := order[0]
	for _, v := range order[1:] {
		if better(v, best) {
			best = v
		}
	}

	result := &types.ClassificationResult{
		Label:       best.label,
		Confidence:  float64(best.votes) / float64(effectiveK),
		Confidences: make(map[types.Label]float64, len(labels)),
		K:           effectiveK,
		Neighbors:   make([]types.Neighbor, effectiveK),
	}
	for label := range labels {
		result.Confidences[label] = 0
	}
	for _, v := range order {
		result.Confidences[v.label] = float64(v.votes) / float64(effectiveK)
	}
	for i, n := range nearest {
		result.Neighbors[i] = types.Neighbor{Label: n.label, Distance: n.distance}
	}

	return result, nil
}

// better reports whether a beats b in the label vote.
func better(a, b *labelVote) bool {
	if a.votes != b.votes {
		return a.votes > b.votes
	}
	meanA := a.sumDist / float64(a.votes)
	meanB := b.sumDist / float64(b.votes)
	if meanA != meanB {
		return meanA < meanB
	}
	return a.firstRank < b.firstRank
}
