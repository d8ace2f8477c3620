package extraction

import (
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/biomed_ner"
)

// ReduceSpans classifies recognizer spans. Every span becomes one entity
// and one Word/Entity row in recognizer order. Words of disease or disorder
// spans are collected into the disease set.
func ReduceSpans(spans []biomed_ner.Span) ([]biomed.Entity, []biomed.DisplayRow, biomed.DiseaseSet) {
	entities := make([]biomed.Entity, 0, len(spans))
	rows := make([]biomed.DisplayRow, 0, len(spans))
	var diseases []string

	for _, s := range spans {
		category := biomed.CategoryFromLabel(s.Label)
		entities = append(entities, biomed.Entity{
			Category: category,
			Label:    s.Label,
			Text:     s.Word,
			Score:    s.Score,
		})
		rows = append(rows, biomed.DisplayRow{Word: s.Word, Entity: s.Label})
		if category == biomed.CategoryDisease {
			diseases = append(diseases, s.Word)
		}
	}
	return entities, rows, biomed.NewDiseaseSet(diseases...)
}

// ReduceExtraction turns a structured extraction result into
// Category/Entity/Context rows and the disease set.
func ReduceExtraction(result ExtractionResult) ([]biomed.Entity, []biomed.DisplayRow, biomed.DiseaseSet) {
	entities := make([]biomed.Entity, len(result.Entities))
	copy(entities, result.Entities)

	rows := make([]biomed.DisplayRow, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, biomed.DisplayRow{Category: e.Label, Entity: e.Text, Context: e.Context})
	}
	return entities, rows, biomed.NewDiseaseSet(result.Diseases...)
}
