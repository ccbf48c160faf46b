package classifier

import (
	"sort"
	"time"
)

const topImportantSymptoms = 10

// SymptomImportance is one symptom's share of the ensemble's total impurity
// decrease.
type SymptomImportance struct {
	Symptom    string  `json:"symptom"`
	Importance float64 `json:"importance"`
}

// ModelInfo summarizes the serving model.
type ModelInfo struct {
	ModelType            string              `json:"model_type"`
	NEstimators          int                 `json:"n_estimators"`
	MaxDepth             int                 `json:"max_depth"`
	TotalFeatures        int                 `json:"total_features"`
	TotalDiseases        int                 `json:"total_diseases"`
	TopImportantSymptoms []SymptomImportance `json:"top_important_symptoms"`
	Generation           string              `json:"generation"`
	Accuracy             float64             `json:"accuracy"`
	TrainedAt            time.Time           `json:"trained_at"`
}

// ModelInfo describes the serving model, including the ten most important
// symptoms in descending order.
func (p *Pipeline) ModelInfo() (ModelInfo, error) {
	f := p.current.Load()
	if f == nil {
		return ModelInfo{}, ErrModelNotReady
	}

	ranked := make([]SymptomImportance, 0, len(f.Vocabulary))
	for i, s := range f.Vocabulary {
		if i >= len(f.Forest.Importances) {
			break
		}
		ranked = append(ranked, SymptomImportance{Symptom: s, Importance: f.Forest.Importances[i]})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Importance > ranked[b].Importance
	})
	if len(ranked) > topImportantSymptoms {
		ranked = ranked[:topImportantSymptoms]
	}

	return ModelInfo{
		ModelType:            ModelType,
		NEstimators:          len(f.Forest.Trees),
		MaxDepth:             f.Forest.Params.MaxDepth,
		TotalFeatures:        len(f.Vocabulary),
		TotalDiseases:        f.Labels.Len(),
		TopImportantSymptoms: ranked,
		Generation:           f.Generation,
		Accuracy:             f.Accuracy,
		TrainedAt:            f.TrainedAt,
	}, nil
}
