package dataset

import (
	"math"
	"sort"
)

// MatchResult scores one disease against a selected symptom set by overlap
// with its primary symptoms.
type MatchResult struct {
	Disease         string   `json:"disease"`
	Confidence      int      `json:"confidence"`
	MatchedSymptoms []string `json:"matched_symptoms"`
	TotalSymptoms   int      `json:"total_symptoms"`
}

// Match ranks diseases by how well their primary symptoms cover the
// selection. Diseases with no overlap are left out. The score averages the
// share of the disease's symptoms that matched and the share of the
// selection explained by the disease, capped at 100.
func Match(selected []string) []MatchResult {
	if len(selected) == 0 {
		return []MatchResult{}
	}

	chosen := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		chosen[s] = struct{}{}
	}

	results := []MatchResult{}
	for _, d := range diseases {
		matched := []string{}
		for _, s := range d.Symptoms {
			if _, ok := chosen[s]; ok {
				matched = append(matched, s)
			}
		}
		if len(matched) == 0 {
			continue
		}

		coverage := float64(len(matched)) / float64(len(d.Symptoms)) * 100
		explained := float64(len(matched)) / float64(len(selected)) * 100
		score := math.Min((coverage+explained)/2, 100)

		results = append(results, MatchResult{
			Disease:         d.Name,
			Confidence:      int(math.Round(score)),
			MatchedSymptoms: matched,
			TotalSymptoms:   len(d.Symptoms),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}
