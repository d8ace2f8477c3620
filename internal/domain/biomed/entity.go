// Package biomed provides the domain model for biomedical entity extraction
// and drug recommendation: classified entities, the de-duplicated disease set,
// the disease → drugs recommendation map and the caller-held analysis session.
// Every type here is a value; nothing in this package performs I/O.
package biomed

import (
	"strings"
	"unicode"
)

// ─────────────────────────────────────────────────────────────────────────────
// Category
// ─────────────────────────────────────────────────────────────────────────────

// Category classifies an extracted entity.
type Category string

const (
	CategoryDisease     Category = "Disease"
	CategoryDrug        Category = "Drug"
	CategoryGeneProtein Category = "GeneProtein"
	CategorySymptom     Category = "Symptom"
	CategoryUnknown     Category = "Unknown"
)

// Category keys of the structured extraction document, in the order they are
// requested and walked.
const (
	KeyDiseases      = "diseases"
	KeyDrugs         = "drugs"
	KeyGenesProteins = "genes_proteins"
	KeySymptoms      = "symptoms"
)

// CategoryKeys is the fixed walk order of the structured extraction document.
var CategoryKeys = []string{KeyDiseases, KeyDrugs, KeyGenesProteins, KeySymptoms}

// CategoryFromKey maps a structured extraction key to its Category.
func CategoryFromKey(key string) Category {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case KeyDiseases:
		return CategoryDisease
	case KeyDrugs:
		return CategoryDrug
	case KeyGenesProteins:
		return CategoryGeneProtein
	case KeySymptoms:
		return CategorySymptom
	default:
		return CategoryUnknown
	}
}

// IsDiseaseLabel reports whether a recognizer label denotes a disease or
// disorder. The match is a case-insensitive substring test.
func IsDiseaseLabel(label string) bool {
	l := strings.ToLower(label)
	return strings.Contains(l, "disease") || strings.Contains(l, "disorder")
}

// CategoryFromLabel maps a free-form recognizer label (DISEASE, B-Chemical,
// Sign_symptom, protein, ...) to a Category.
func CategoryFromLabel(label string) Category {
	if IsDiseaseLabel(label) {
		return CategoryDisease
	}
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "chemical"), strings.Contains(l, "drug"), strings.Contains(l, "medication"):
		return CategoryDrug
	case strings.Contains(l, "gene"), strings.Contains(l, "protein"), strings.Contains(l, "dna"), strings.Contains(l, "rna"):
		return CategoryGeneProtein
	case strings.Contains(l, "symptom"), strings.Contains(l, "sign"):
		return CategorySymptom
	default:
		return CategoryUnknown
	}
}

// Capitalize upper-cases the first letter of s and lower-cases the rest,
// so "genes_proteins" becomes "Genes_proteins".
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ─────────────────────────────────────────────────────────────────────────────
// Entity
// ─────────────────────────────────────────────────────────────────────────────

// Entity is one classified span of text.
type Entity struct {
	Category Category `json:"category"`
	// Label is the display label: the raw recognizer label, or the capitalized
	// category key for structured extraction.
	Label   string  `json:"label"`
	Text    string  `json:"text"`
	Context string  `json:"context,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// IsDisease reports whether the entity is a disease.
func (e Entity) IsDisease() bool { return e.Category == CategoryDisease }

// ─────────────────────────────────────────────────────────────────────────────
// Display rows
// ─────────────────────────────────────────────────────────────────────────────

// RowShape identifies the column layout of a display table.
type RowShape string

const (
	// ShapeWordEntity is the recognizer table: Word | Entity.
	ShapeWordEntity RowShape = "word_entity"
	// ShapeCategoryEntityContext is the structured table: Category | Entity | Context.
	ShapeCategoryEntityContext RowShape = "category_entity_context"
)

// Columns returns the header row for the shape.
func (s RowShape) Columns() []string {
	if s == ShapeWordEntity {
		return []string{"Word", "Entity"}
	}
	return []string{"Category", "Entity", "Context"}
}

// DisplayRow is one row of the entity table handed to presentation.
type DisplayRow struct {
	Word     string `json:"word,omitempty"`
	Category string `json:"category,omitempty"`
	Entity   string `json:"entity"`
	Context  string `json:"context,omitempty"`
}

// Cells returns the row values in the column order of shape.
func (r DisplayRow) Cells(shape RowShape) []string {
	if shape == ShapeWordEntity {
		return []string{r.Word, r.Entity}
	}
	return []string{r.Category, r.Entity, r.Context}
}
