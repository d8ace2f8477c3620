package biomed

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NoRecommendation is the display marker for a disease the model returned
// nothing for.
const NoRecommendation = "No drug recommendations found."

// MaxDrugsPerDisease caps every drug list.
const MaxDrugsPerDisease = 3

// Recommendation holds the drugs suggested for one disease.
type Recommendation struct {
	Disease string `json:"disease"`
	// Drugs is the parsed list, at most MaxDrugsPerDisease names.
	Drugs []string `json:"drugs"`
	// Display is the text shown to the user: the trimmed model answer in
	// per-disease mode, the ", "-joined list in batch mode, or NoRecommendation.
	Display string `json:"display"`
}

// Found reports whether at least one drug was recommended.
func (r Recommendation) Found() bool { return len(r.Drugs) > 0 }

// Line renders the recommendation as "Title Cased Disease: drugs".
func (r Recommendation) Line() string {
	return TitleCase(r.Disease) + ": " + r.Display
}

// NewRecommendation builds a Recommendation from a drug list, capping it and
// deriving Display.
func NewRecommendation(disease string, drugs []string) Recommendation {
	clean := CleanDrugList(drugs)
	if len(clean) == 0 {
		return Empty(disease)
	}
	return Recommendation{Disease: disease, Drugs: clean, Display: strings.Join(clean, ", ")}
}

// NewTextRecommendation builds a Recommendation from a free-text model answer.
// The trimmed answer is kept as Display; Drugs is its comma split.
func NewTextRecommendation(disease, answer string) Recommendation {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Empty(disease)
	}
	return Recommendation{
		Disease: disease,
		Drugs:   CleanDrugList(strings.Split(answer, ",")),
		Display: answer,
	}
}

// Empty returns the marker recommendation for disease.
func Empty(disease string) Recommendation {
	return Recommendation{Disease: disease, Drugs: []string{}, Display: NoRecommendation}
}

// CleanDrugList trims entries, drops blanks and caps the list.
func CleanDrugList(drugs []string) []string {
	out := make([]string, 0, MaxDrugsPerDisease)
	for _, d := range drugs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		out = append(out, d)
		if len(out) == MaxDrugsPerDisease {
			break
		}
	}
	return out
}

// TitleCase upper-cases the first letter of every word.
func TitleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// RecommendationMap
// ─────────────────────────────────────────────────────────────────────────────

// RecommendationMap maps disease names to recommendations in DiseaseSet order.
// Malformed marks a batch answer that could not be parsed; such a map is empty
// but is not the same as a map built from an empty DiseaseSet.
type RecommendationMap struct {
	Items     []Recommendation `json:"items"`
	Malformed bool             `json:"malformed"`
}

// Len returns the number of diseases in the map.
func (m RecommendationMap) Len() int { return len(m.Items) }

// Keys returns disease names in order.
func (m RecommendationMap) Keys() []string {
	keys := make([]string, len(m.Items))
	for i, it := range m.Items {
		keys[i] = it.Disease
	}
	return keys
}

// Get returns the recommendation for a disease, matched by DiseaseKey.
func (m RecommendationMap) Get(disease string) (Recommendation, bool) {
	key := DiseaseKey(disease)
	for _, it := range m.Items {
		if DiseaseKey(it.Disease) == key {
			return it, true
		}
	}
	return Recommendation{}, false
}

// Lists returns the {disease: [drug, ...]} shape.
func (m RecommendationMap) Lists() map[string][]string {
	out := make(map[string][]string, len(m.Items))
	for _, it := range m.Items {
		drugs := make([]string, len(it.Drugs))
		copy(drugs, it.Drugs)
		out[it.Disease] = drugs
	}
	return out
}

// Strings returns the {disease: "comma-separated"} shape.
func (m RecommendationMap) Strings() map[string]string {
	out := make(map[string]string, len(m.Items))
	for _, it := range m.Items {
		out[it.Disease] = it.Display
	}
	return out
}

// CoveredBy reports whether every key is a member of set.
func (m RecommendationMap) CoveredBy(set DiseaseSet) bool {
	for _, it := range m.Items {
		if !set.Contains(it.Disease) {
			return false
		}
	}
	return true
}

// Complete reports whether every member of set has a key.
func (m RecommendationMap) Complete(set DiseaseSet) bool {
	for _, name := range set.Names() {
		if _, ok := m.Get(name); !ok {
			return false
		}
	}
	return true
}
