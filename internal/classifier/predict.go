package classifier

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Skufu/symptomcheck/internal/metrics"
)

const (
	// MaxPredictions bounds the length of a prediction result.
	MaxPredictions = 5

	// minProbability is exclusive: a class must score above 1%.
	minProbability = 0.01
)

// Prediction is one ranked disease with its confidence in percent.
type Prediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// Predict scores a symptom set against the serving model. Unknown symptom
// ids are ignored and an empty set is valid. The result has at most five
// entries, each above 1%, sorted by confidence descending.
func (p *Pipeline) Predict(symptoms []string) ([]Prediction, error) {
	return p.PredictWith(p.current.Load(), symptoms)
}

// PredictWith scores symptoms against a snapshot obtained from Snapshot, so
// callers can attribute the result to that snapshot's generation even if a
// retrain swaps the serving model meanwhile. A nil snapshot is not ready.
func (p *Pipeline) PredictWith(f *Fitted, symptoms []string) ([]Prediction, error) {
	if f == nil {
		metrics.PredictionsTotal.WithLabelValues("not_ready").Inc()
		return nil, ErrModelNotReady
	}

	start := time.Now()
	key := cacheKey(f, symptoms)
	if v, ok := p.cache.Get(key); ok {
		metrics.PredictionCacheHits.Inc()
		metrics.PredictionsTotal.WithLabelValues("ok").Inc()
		return append([]Prediction(nil), v.([]Prediction)...), nil
	}

	proba, err := f.Forest.PredictProba(f.encode(symptoms))
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	out, err := rank(proba, f.Labels)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if p.cacheLimit > 0 && p.cache.ItemCount() < p.cacheLimit {
		p.cache.Set(key, append([]Prediction(nil), out...), cache.DefaultExpiration)
	}
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	metrics.PredictionsTotal.WithLabelValues("ok").Inc()
	return out, nil
}

// rank keeps the top MaxPredictions classes by probability, drops those at
// or below 1% and converts the rest to percentages rounded to 2 decimals.
func rank(proba []float64, labels *LabelEncoder) ([]Prediction, error) {
	order := make([]int, len(proba))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return proba[order[a]] > proba[order[b]]
	})
	if len(order) > MaxPredictions {
		order = order[:MaxPredictions]
	}

	out := make([]Prediction, 0, len(order))
	for _, c := range order {
		if proba[c] <= minProbability {
			continue
		}
		name, err := labels.Decode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, Prediction{
			Disease:    name,
			Confidence: math.Round(proba[c]*100*100) / 100,
		})
	}
	return out, nil
}

// cacheKey identifies a query by model generation and the sorted set of
// known symptoms it contains.
func cacheKey(f *Fitted, symptoms []string) string {
	known := make([]string, 0, len(symptoms))
	seen := map[string]struct{}{}
	for _, s := range symptoms {
		if _, ok := f.index[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		known = append(known, s)
	}
	sort.Strings(known)
	return f.Generation + "|" + strings.Join(known, ",")
}
