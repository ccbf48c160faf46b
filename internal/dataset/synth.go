package dataset

import "math/rand/v2"

const (
	// DefaultSeed reproduces the reference corpus.
	DefaultSeed int64 = 42

	// SamplesPerDisease is the number of rows generated for each disease.
	SamplesPerDisease = 50

	maxNoise = 2
)

// Sample is one labeled training row.
type Sample struct {
	Disease  string
	Symptoms []string
	Features []float64
}

// Dataset is a synthesized corpus together with the vocabulary and label set
// it was generated from.
type Dataset struct {
	Samples    []Sample
	Vocabulary []string
	Labels     []string
}

// Synthesize generates the training corpus. Output depends only on seed.
func Synthesize(seed int64) *Dataset {
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	samples := make([]Sample, 0, len(diseases)*SamplesPerDisease)
	for _, d := range diseases {
		complement := complementOf(d.Symptoms)
		for i := 0; i < SamplesPerDisease; i++ {
			present := append([]string(nil), d.Symptoms...)
			present = append(present, drawNoise(r, complement, r.IntN(maxNoise+1))...)
			samples = append(samples, Sample{
				Disease:  d.Name,
				Symptoms: present,
				Features: Encode(present),
			})
		}
	}

	return &Dataset{
		Samples:    samples,
		Vocabulary: Vocabulary(),
		Labels:     DiseaseNames(),
	}
}

// complementOf returns the vocabulary minus primary, in vocabulary order.
func complementOf(primary []string) []string {
	skip := make(map[string]struct{}, len(primary))
	for _, s := range primary {
		skip[s] = struct{}{}
	}
	out := make([]string, 0, len(symptoms)-len(primary))
	for _, s := range symptoms {
		if _, ok := skip[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// drawNoise picks n symptoms from pool without replacement.
func drawNoise(r *rand.Rand, pool []string, n int) []string {
	if n <= 0 {
		return nil
	}
	picked := append([]string(nil), pool...)
	for i := 0; i < n; i++ {
		j := i + r.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:n]
}
