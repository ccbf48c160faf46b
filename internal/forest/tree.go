package forest

import (
	"math/rand/v2"
	"sort"
)

// Node is one entry of a tree's flat node array. Internal nodes route
// x[Feature] <= Threshold to Left, otherwise to Right. Leaves have Feature
// -1 and carry the class distribution of the training rows that reached them.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Dist      []float64 `json:"dist,omitempty"`
}

// Tree is a fitted CART classification tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leaf(x []float64) []float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Dist
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
	left      []int
	right     []int
}

// builder grows one tree over a bootstrap sample. importance accumulates the
// weighted gini decrease per feature.
type builder struct {
	x          [][]float64
	y          []int
	classes    int
	maxDepth   int
	minSplit   int
	mtry       int
	rng        *rand.Rand
	nodes      []Node
	importance []float64
}

func (b *builder) grow(idx []int, depth int) int {
	counts := b.classCounts(idx)
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1})

	if depth >= b.maxDepth || len(idx) < b.minSplit || isPure(counts) {
		b.nodes[id].Dist = distribution(counts, len(idx))
		return id
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[id].Dist = distribution(counts, len(idx))
		return id
	}

	n := float64(len(idx))
	decrease := n*gini(counts, len(idx)) - float64(len(best.left)+len(best.right))*best.impurity
	b.importance[best.feature] += decrease

	left := b.grow(best.left, depth+1)
	right := b.grow(best.right, depth+1)
	b.nodes[id] = Node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      left,
		Right:     right,
	}
	return id
}

// bestSplit examines features in random order until mtry non-constant
// features have been scored. Constant features do not count toward mtry.
func (b *builder) bestSplit(idx []int) (split, bool) {
	var best split
	found := false
	visited := 0

	for _, f := range b.rng.Perm(len(b.x[0])) {
		if visited >= b.mtry {
			break
		}
		thresholds := candidateThresholds(b.x, idx, f)
		if len(thresholds) == 0 {
			continue
		}
		visited++

		for _, th := range thresholds {
			left, right := partition(b.x, idx, f, th)
			impurity := weightedGini(b.classCounts(left), len(left), b.classCounts(right), len(right))
			if !found || impurity < best.impurity {
				best = split{feature: f, threshold: th, impurity: impurity, left: left, right: right}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) classCounts(idx []int) []int {
	counts := make([]int, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	return counts
}

// candidateThresholds returns midpoints between consecutive distinct values
// of feature f. A constant feature yields none.
func candidateThresholds(x [][]float64, idx []int, f int) []float64 {
	seen := map[float64]struct{}{}
	for _, i := range idx {
		seen[x[i][f]] = struct{}{}
	}
	if len(seen) < 2 {
		return nil
	}
	values := make([]float64, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Float64s(values)

	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, (values[i-1]+values[i])/2)
	}
	return out
}

func partition(x [][]float64, idx []int, f int, th float64) (left, right []int) {
	for _, i := range idx {
		if x[i][f] <= th {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func weightedGini(lc []int, ln int, rc []int, rn int) float64 {
	total := float64(ln + rn)
	return float64(ln)/total*gini(lc, ln) + float64(rn)/total*gini(rc, rn)
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func distribution(counts []int, n int) []float64 {
	dist := make([]float64, len(counts))
	if n == 0 {
		return dist
	}
	for i, c := range counts {
		dist[i] = float64(c) / float64(n)
	}
	return dist
}
