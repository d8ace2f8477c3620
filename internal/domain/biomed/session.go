package biomed

import (
	"time"

	"github.com/google/uuid"
)

// Variant names an extraction strategy.
type Variant string

const (
	VariantRecognizer Variant = "recognizer"
	VariantGenerative Variant = "generative"
)

// RowShape returns the display table layout produced by the variant.
func (v Variant) RowShape() RowShape {
	if v == VariantRecognizer {
		return ShapeWordEntity
	}
	return ShapeCategoryEntityContext
}

// Session is the caller-held result of the latest analysis. The pipeline
// takes a Session by value and returns a new one; it never mutates the
// caller's copy.
type Session struct {
	ID       string       `json:"id"`
	Variant  Variant      `json:"variant,omitempty"`
	Source   string       `json:"source,omitempty"`
	Entities []Entity     `json:"entities"`
	Rows     []DisplayRow `json:"rows"`
	Diseases DiseaseSet   `json:"diseases"`
	// Recommendations is nil until recommendations were requested for the
	// current DiseaseSet.
	Recommendations *RecommendationMap `json:"recommendations,omitempty"`
	Warning         string             `json:"warning,omitempty"`
	RawResponse     string             `json:"raw_response,omitempty"`
	Malformed       bool               `json:"malformed,omitempty"`
	AnalyzedAt      time.Time          `json:"analyzed_at"`
}

// NewSession returns an empty session with a fresh ID.
func NewSession() Session {
	return Session{
		ID:       uuid.NewString(),
		Entities: []Entity{},
		Rows:     []DisplayRow{},
	}
}

// RowShape returns the display layout of the session's rows.
func (s Session) RowShape() RowShape { return s.Variant.RowShape() }

// HasDiseases reports whether the last analysis found any disease.
func (s Session) HasDiseases() bool { return !s.Diseases.IsEmpty() }

// WithRecommendations returns a copy of s whose recommendation map is
// replaced by m. Other fields are shared with s.
func (s Session) WithRecommendations(m RecommendationMap) Session {
	out := s
	out.Recommendations = &m
	return out
}

// Consistent reports whether every recommendation key belongs to the
// session's DiseaseSet.
func (s Session) Consistent() bool {
	if s.Recommendations == nil {
		return true
	}
	return s.Recommendations.CoveredBy(s.Diseases)
}
