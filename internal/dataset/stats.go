package dataset

import "sort"

const topSymptomCount = 20

// Count pairs a name with an occurrence count.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes a corpus: how many rows each disease has and which
// symptoms occur most often across all rows.
type Stats struct {
	TotalSamples int     `json:"total_samples"`
	Diseases     []Count `json:"disease_distribution"`
	TopSymptoms  []Count `json:"top_symptoms"`
}

// Stats aggregates the dataset. Ties are broken by name so output is stable.
func (d *Dataset) Stats() Stats {
	diseaseCounts := map[string]int{}
	symptomCounts := map[string]int{}
	for _, s := range d.Samples {
		diseaseCounts[s.Disease]++
		for _, sym := range s.Symptoms {
			symptomCounts[sym]++
		}
	}

	top := sortedCounts(symptomCounts)
	if len(top) > topSymptomCount {
		top = top[:topSymptomCount]
	}

	return Stats{
		TotalSamples: len(d.Samples),
		Diseases:     sortedCounts(diseaseCounts),
		TopSymptoms:  top,
	}
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
