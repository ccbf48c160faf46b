package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// ErrTooFewSamples is returned when a class cannot appear on both sides of a
// stratified split.
var ErrTooFewSamples = errors.New("forest: too few samples to stratify")

// StratifiedSplit partitions row indices so that each class contributes
// round(n*testFraction) rows to the test side, clamped so both sides keep at
// least one row of every class. Both returned slices are sorted.
func StratifiedSplit(y []int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("forest: test fraction %v outside (0,1)", testFraction)
	}

	byClass := map[int][]int{}
	classes := []int{}
	for i, label := range y {
		if _, ok := byClass[label]; !ok {
			classes = append(classes, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewPCG(seed, seed))
	for _, c := range classes {
		rows := byClass[c]
		if len(rows) < 2 {
			return nil, nil, fmt.Errorf("%w: class %d has %d sample(s)", ErrTooFewSamples, c, len(rows))
		}
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		nTest := int(math.Round(float64(len(rows)) * testFraction))
		nTest = max(1, min(nTest, len(rows)-1))

		test = append(test, rows[:nTest]...)
		train = append(train, rows[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}
