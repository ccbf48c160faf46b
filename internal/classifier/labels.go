package classifier

import (
	"fmt"
	"sort"
)

// LabelEncoder maps disease names to dense class indices. Classes are kept
// sorted so the same label set always yields the same encoding.
type LabelEncoder struct {
	Classes []string `json:"classes"`
	index   map[string]int
}

// FitLabels builds an encoder from the distinct values in labels.
func FitLabels(labels []string) *LabelEncoder {
	seen := map[string]struct{}{}
	classes := []string{}
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Strings(classes)
	return newLabelEncoder(classes)
}

func newLabelEncoder(classes []string) *LabelEncoder {
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &LabelEncoder{Classes: classes, index: idx}
}

// Encode returns the class index for a label.
func (e *LabelEncoder) Encode(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", label)
	}
	return i, nil
}

// Decode returns the label for a class index.
func (e *LabelEncoder) Decode(i int) (string, error) {
	if i < 0 || i >= len(e.Classes) {
		return "", fmt.Errorf("class index %d out of range", i)
	}
	return e.Classes[i], nil
}

func (e *LabelEncoder) Len() int { return len(e.Classes) }
