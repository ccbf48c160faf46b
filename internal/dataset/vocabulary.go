// Package dataset holds the fixed symptom vocabulary, the disease table and
// the deterministic synthetic corpus the classifier is trained on.
package dataset

import "strings"

// SymptomCategory and DiseaseCategory are placeholders; the table carries no
// real taxonomy.
const (
	SymptomCategory = "General"
	DiseaseCategory = "Medical Condition"
)

// The order of this list is the feature layout. Never reorder or insert in
// the middle; persisted models record it and are rejected on mismatch.
var symptoms = []string{
	"fever", "cough", "fatigue", "headache", "nausea", "vomiting", "diarrhea",
	"abdominal_pain", "chest_pain", "shortness_breath", "dizziness", "joint_pain",
	"muscle_pain", "rash", "sore_throat", "runny_nose", "sneezing", "chills",
	"night_sweats", "weight_loss", "loss_appetite", "confusion", "seizures",
	"numbness", "tingling", "blurred_vision", "frequent_urination", "excessive_thirst",
	"dry_mouth", "constipation", "bloating", "heartburn", "difficulty_swallowing",
	"hoarseness", "wheezing", "palpitations", "swelling", "bruising", "itching",
}

// Disease is one row of the embedded disease table.
type Disease struct {
	Name     string
	Symptoms []string
}

var diseases = []Disease{
	{"Common Cold", []string{"cough", "runny_nose", "sneezing", "sore_throat", "fatigue"}},
	{"Influenza", []string{"fever", "cough", "fatigue", "muscle_pain", "headache", "chills"}},
	{"COVID-19", []string{"fever", "cough", "shortness_breath", "fatigue", "loss_appetite", "headache"}},
	{"Pneumonia", []string{"fever", "cough", "shortness_breath", "chest_pain", "fatigue", "chills"}},
	{"Bronchitis", []string{"cough", "fatigue", "chest_pain", "shortness_breath"}},
	{"Asthma", []string{"shortness_breath", "wheezing", "cough", "chest_pain"}},
	{"Diabetes Type 2", []string{"fatigue", "weight_loss", "frequent_urination", "excessive_thirst", "blurred_vision"}},
	{"Hypertension", []string{"headache", "dizziness", "chest_pain", "shortness_breath"}},
	{"Migraine", []string{"headache", "nausea", "vomiting", "dizziness", "fatigue"}},
	{"Tension Headache", []string{"headache", "muscle_pain", "fatigue"}},
	{"Gastroenteritis", []string{"nausea", "vomiting", "diarrhea", "abdominal_pain", "fever", "fatigue"}},
	{"Food Poisoning", []string{"nausea", "vomiting", "diarrhea", "abdominal_pain", "fever"}},
	{"Appendicitis", []string{"abdominal_pain", "nausea", "vomiting", "fever", "loss_appetite"}},
	{"Arthritis", []string{"joint_pain", "swelling", "fatigue"}},
	{"Fibromyalgia", []string{"muscle_pain", "fatigue", "headache"}},
	{"Depression", []string{"fatigue", "loss_appetite", "weight_loss"}},
	{"Anxiety Disorder", []string{"palpitations", "shortness_breath", "dizziness"}},
	{"Allergic Reaction", []string{"rash", "itching", "swelling", "runny_nose", "sneezing"}},
	{"Eczema", []string{"rash", "itching", "dry_mouth"}},
	{"Urinary Tract Infection", []string{"frequent_urination", "abdominal_pain", "fever"}},
}

var symptomIndex = func() map[string]int {
	idx := make(map[string]int, len(symptoms))
	for i, s := range symptoms {
		idx[s] = i
	}
	return idx
}()

// Vocabulary returns a copy of the ordered symptom vocabulary.
func Vocabulary() []string {
	return append([]string(nil), symptoms...)
}

// Diseases returns a copy of the disease table in table order.
func Diseases() []Disease {
	out := make([]Disease, len(diseases))
	for i, d := range diseases {
		out[i] = Disease{Name: d.Name, Symptoms: append([]string(nil), d.Symptoms...)}
	}
	return out
}

// DiseaseNames returns the disease label set in table order.
func DiseaseNames() []string {
	out := make([]string, len(diseases))
	for i, d := range diseases {
		out[i] = d.Name
	}
	return out
}

// IndexOf reports the feature position of a symptom id.
func IndexOf(symptom string) (int, bool) {
	i, ok := symptomIndex[symptom]
	return i, ok
}

// Encode builds the binary feature vector for a symptom set. Unknown ids are
// ignored.
func Encode(present []string) []float64 {
	vec := make([]float64, len(symptoms))
	for _, s := range present {
		if i, ok := symptomIndex[s]; ok {
			vec[i] = 1
		}
	}
	return vec
}

// SymptomName renders a symptom id for display: "shortness_breath" becomes
// "Shortness Breath".
func SymptomName(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// DiseaseID derives the stable identifier for a disease name.
func DiseaseID(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
