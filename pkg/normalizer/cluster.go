package normalizer

import (
	"math"
	"slices"
	"sort"

	"github.com/dtnitsch/sutta-concepts/models"
)

// Clusterer groups vectors into clusters of indices.
type Clusterer interface {
	Cluster(vectors [][]float32, threshold float64, minSize int) [][]int
}

// CommunityDetector finds groups of vectors whose cosine similarity to a
// seed is at least the threshold.
//
// Each vector seeds a candidate community of every vector at or above the
// threshold, ordered by similarity to the seed. Candidates smaller than
// minSize are dropped. Larger candidates claim members first; later ones
// keep only unclaimed members and survive if they still reach minSize. The
// result is ordered largest first.
type CommunityDetector struct{}

func (CommunityDetector) Cluster(vectors [][]float32, threshold float64, minSize int) [][]int {
	if minSize < 1 {
		minSize = 1
	}
	n := len(vectors)
	if n == 0 || minSize > n {
		return nil
	}
	unit := make([][]float64, n)
	for i, v := range vectors {
		unit[i] = normalize(v)
	}

	var candidates [][]int
	for i := range n {
		type scored struct {
			idx   int
			score float64
		}
		var members []scored
		for j := range n {
			if s := dot(unit[i], unit[j]); s >= threshold {
				members = append(members, scored{j, s})
			}
		}
		if len(members) < minSize {
			continue
		}
		sort.SliceStable(members, func(a, b int) bool { return members[a].score > members[b].score })
		community := make([]int, len(members))
		for k, m := range members {
			community[k] = m.idx
		}
		candidates = append(candidates, community)
	}

	sort.SliceStable(candidates, func(a, b int) bool { return len(candidates[a]) > len(candidates[b]) })

	claimed := make(map[int]struct{}, n)
	var communities [][]int
	for _, c := range candidates {
		var free []int
		for _, idx := range c {
			if _, ok := claimed[idx]; !ok {
				free = append(free, idx)
			}
		}
		if len(free) < minSize {
			continue
		}
		for _, idx := range free {
			claimed[idx] = struct{}{}
		}
		communities = append(communities, free)
	}
	sort.SliceStable(communities, func(a, b int) bool { return len(communities[a]) > len(communities[b]) })
	return communities
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += out[i] * out[i]
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range min(len(a), len(b)) {
		s += a[i] * b[i]
	}
	return s
}

// Materialize maps index clusters back to concept objects.
func Materialize(clusters [][]int, corpus Corpus) [][]models.Concept {
	out := make([][]models.Concept, 0, len(clusters))
	for _, c := range clusters {
		group := make([]models.Concept, 0, len(c))
		for _, idx := range c {
			if idx >= 0 && idx < len(corpus.Items) {
				group = append(group, corpus.Items[idx])
			}
		}
		out = append(out, slices.Clip(group))
	}
	return out
}
