package vectorindex

import (
	"fmt"
	"math"
	"sort"
)

// Metric is the similarity measure of an index
type Metric string

const (
	// Cosine scores by cosine similarity
	Cosine Metric = "cosine"
	// L2 scores by negative euclidean distance
	L2 Metric = "l2"
)

// ParseMetric parses a configured metric name. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", Cosine:
		return Cosine, nil
	case L2:
		return L2, nil
	default:
		return "", fmt.Errorf("unsupported metric: %s", s)
	}
}

// Score returns the similarity of a and b, higher is closer.
func (m Metric) Score(a, b []float32) float64 {
	if m == L2 {
		return -euclidean(a, b)
	}
	return cosine(a, b)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// topK sorts matches best first, keeping insertion order on ties, and truncates to k.
func topK(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
