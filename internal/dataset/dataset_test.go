package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeIsDeterministic(t *testing.T) {
	a := Synthesize(DefaultSeed)
	b := Synthesize(DefaultSeed)
	require.Equal(t, a, b)
}

func TestSynthesizeShape(t *testing.T) {
	ds := Synthesize(DefaultSeed)

	require.Len(t, ds.Samples, len(diseases)*SamplesPerDisease)
	assert.Equal(t, symptoms, ds.Vocabulary)
	assert.Len(t, ds.Labels, 20)

	primary := map[string][]string{}
	for _, d := range diseases {
		primary[d.Name] = d.Symptoms
	}

	for _, s := range ds.Samples {
		want := primary[s.Disease]
		require.NotNil(t, want, "unknown disease %q", s.Disease)
		assert.Equal(t, want, s.Symptoms[:len(want)])

		noise := len(s.Symptoms) - len(want)
		assert.GreaterOrEqual(t, noise, 0)
		assert.LessOrEqual(t, noise, maxNoise)

		seen := map[string]bool{}
		for _, sym := range s.Symptoms {
			assert.False(t, seen[sym], "duplicate symptom %q in %v", sym, s.Symptoms)
			seen[sym] = true
		}

		require.Len(t, s.Features, len(symptoms))
		ones := 0
		for i, v := range s.Features {
			if v == 1 {
				ones++
				assert.True(t, seen[symptoms[i]])
			}
		}
		assert.Equal(t, len(s.Symptoms), ones)
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	assert.NotEqual(t, Synthesize(1).Samples, Synthesize(2).Samples)
}

func TestEncodeIgnoresUnknown(t *testing.T) {
	vec := Encode([]string{"fever", "not_a_symptom", "itching"})
	require.Len(t, vec, len(symptoms))

	fever, _ := IndexOf("fever")
	itching, _ := IndexOf("itching")
	sum := 0.0
	for _, v := range vec {
		sum += v
	}
	assert.Equal(t, 2.0, sum)
	assert.Equal(t, 1.0, vec[fever])
	assert.Equal(t, 1.0, vec[itching])
}

func TestVocabularyIsACopy(t *testing.T) {
	v := Vocabulary()
	v[0] = "changed"
	assert.Equal(t, "fever", Vocabulary()[0])
}

func TestDisplayNames(t *testing.T) {
	assert.Equal(t, "Shortness Breath", SymptomName("shortness_breath"))
	assert.Equal(t, "Fever", SymptomName("fever"))
	assert.Equal(t, "urinary_tract_infection", DiseaseID("Urinary Tract Infection"))
	assert.Equal(t, "covid-19", DiseaseID("COVID-19"))
}

func TestMatch(t *testing.T) {
	t.Run("empty selection", func(t *testing.T) {
		assert.Empty(t, Match(nil))
	})

	t.Run("exact primary set scores 100", func(t *testing.T) {
		results := Match([]string{"rash", "itching", "dry_mouth"})
		require.NotEmpty(t, results)
		assert.Equal(t, "Eczema", results[0].Disease)
		assert.Equal(t, 100, results[0].Confidence)
		assert.Equal(t, 3, results[0].TotalSymptoms)
	})

	t.Run("sorted descending", func(t *testing.T) {
		results := Match([]string{"fever", "cough", "fatigue", "headache"})
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Confidence, results[i].Confidence)
		}
	})
}

func TestStats(t *testing.T) {
	st := Synthesize(DefaultSeed).Stats()

	assert.Equal(t, len(diseases)*SamplesPerDisease, st.TotalSamples)
	require.Len(t, st.Diseases, len(diseases))
	for _, c := range st.Diseases {
		assert.Equal(t, SamplesPerDisease, c.Count)
	}

	require.Len(t, st.TopSymptoms, topSymptomCount)
	assert.Equal(t, "fatigue", st.TopSymptoms[0].Name)
	for i := 1; i < len(st.TopSymptoms); i++ {
		assert.GreaterOrEqual(t, st.TopSymptoms[i-1].Count, st.TopSymptoms[i].Count)
	}
}
