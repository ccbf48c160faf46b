// Package forest implements a bagged ensemble of CART classification trees
// over dense float feature vectors.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

var (
	// ErrEmptyTrainingSet is returned by Fit when there are no rows.
	ErrEmptyTrainingSet = errors.New("forest: empty training set")

	// ErrNotFitted is returned when predicting with a forest that has no trees.
	ErrNotFitted = errors.New("forest: model not fitted")

	// ErrFeatureMismatch is returned when a row's width differs from the
	// width the forest was fitted on.
	ErrFeatureMismatch = errors.New("forest: feature vector length mismatch")
)

// Params are the ensemble hyperparameters. MaxFeatures is the number of
// features scored per split; 0 means floor(sqrt(features)).
type Params struct {
	Trees       int    `json:"n_estimators"`
	MaxDepth    int    `json:"max_depth"`
	MinSplit    int    `json:"min_samples_split"`
	MaxFeatures int    `json:"max_features"`
	Seed        uint64 `json:"seed"`
}

// DefaultParams returns the tuned settings used by the classifier service.
func DefaultParams() Params {
	return Params{
		Trees:    100,
		MaxDepth: 10,
		MinSplit: 5,
		Seed:     42,
	}
}

// Forest is a fitted ensemble. It is safe for concurrent reads once Fit
// returns; nothing mutates it afterwards.
type Forest struct {
	Params      Params    `json:"params"`
	Classes     int       `json:"classes"`
	Features    int       `json:"features"`
	Trees       []Tree    `json:"trees"`
	Importances []float64 `json:"importances"`
}

// Fit grows p.Trees trees, each on a bootstrap resample of (x, y). Labels
// must lie in [0, classes).
func Fit(x [][]float64, y []int, classes int, p Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("forest: %d rows but %d labels", len(x), len(y))
	}
	if classes < 1 {
		return nil, fmt.Errorf("forest: need at least one class, got %d", classes)
	}
	features := len(x[0])
	if features == 0 {
		return nil, fmt.Errorf("forest: rows have no features")
	}
	for i, row := range x {
		if len(row) != features {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrFeatureMismatch, i, len(row), features)
		}
		if y[i] < 0 || y[i] >= classes {
			return nil, fmt.Errorf("forest: label %d at row %d out of range [0,%d)", y[i], i, classes)
		}
	}
	if p.Trees < 1 {
		return nil, fmt.Errorf("forest: need at least one tree, got %d", p.Trees)
	}

	mtry := p.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Sqrt(float64(features)))
	}
	if mtry < 1 {
		mtry = 1
	}
	if mtry > features {
		mtry = features
	}
	minSplit := p.MinSplit
	if minSplit < 2 {
		minSplit = 2
	}

	f := &Forest{
		Params:      p,
		Classes:     classes,
		Features:    features,
		Trees:       make([]Tree, p.Trees),
		Importances: make([]float64, features),
	}

	for t := 0; t < p.Trees; t++ {
		rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))

		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.IntN(len(x))
		}

		b := &builder{
			x:          x,
			y:          y,
			classes:    classes,
			maxDepth:   p.MaxDepth,
			minSplit:   minSplit,
			mtry:       mtry,
			rng:        rng,
			importance: make([]float64, features),
		}
		b.grow(sample, 0)
		f.Trees[t] = Tree{Nodes: b.nodes}

		addNormalized(f.Importances, b.importance)
	}

	normalize(f.Importances)
	return f, nil
}

// PredictProba averages the leaf class distributions of every tree.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if f == nil || len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if len(x) != f.Features {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(x), f.Features)
	}

	proba := make([]float64, f.Classes)
	for i := range f.Trees {
		for c, p := range f.Trees[i].leaf(x) {
			proba[c] += p
		}
	}
	n := float64(len(f.Trees))
	for c := range proba {
		proba[c] /= n
	}
	return proba, nil
}

// Predict returns the most probable class. Ties go to the lowest index.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := range proba {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return best, nil
}

// Validate checks that a decoded forest is internally consistent, so a
// corrupt artifact fails at load time rather than panicking on predict.
func (f *Forest) Validate() error {
	if len(f.Trees) == 0 {
		return ErrNotFitted
	}
	if f.Classes < 1 || f.Features < 1 {
		return fmt.Errorf("forest: invalid shape classes=%d features=%d", f.Classes, f.Features)
	}
	if len(f.Importances) != f.Features {
		return fmt.Errorf("forest: %d importances for %d features", len(f.Importances), f.Features)
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("forest: tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				if len(n.Dist) != f.Classes {
					return fmt.Errorf("forest: tree %d leaf %d has %d classes", ti, ni, len(n.Dist))
				}
				continue
			}
			if n.Feature >= f.Features {
				return fmt.Errorf("forest: tree %d node %d feature %d out of range", ti, ni, n.Feature)
			}
			// children are always appended after their parent
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("forest: tree %d node %d has invalid children", ti, ni)
			}
		}
	}
	return nil
}

func addNormalized(dst, src []float64) {
	total := 0.0
	for _, v := range src {
		total += v
	}
	if total <= 0 {
		return
	}
	for i, v := range src {
		dst[i] += v / total
	}
}

func normalize(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}
