package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/biomed_ner"
)

func TestReduceSpans(t *testing.T) {
	spans := []biomed_ner.Span{
		{Word: "lung cancer", Label: "Disease", Score: 0.98},
		{Word: "cisplatin", Label: "Chemical", Score: 0.91},
		{Word: "Diabetes", Label: "DISEASE", Score: 0.95},
		{Word: " diabetes ", Label: "Disease_disorder", Score: 0.7},
		{Word: "BRCA1", Label: "Gene_or_gene_product", Score: 0.88},
		{Word: "fatigue", Label: "Sign_symptom", Score: 0.6},
		{Word: "thing", Label: "Unknown", Score: 0.5},
	}
	entities, rows, diseases := ReduceSpans(spans)

	assert.Len(t, entities, len(spans))
	assert.Len(t, rows, len(spans))
	assert.Equal(t, []string{"lung cancer", "Diabetes"}, diseases.Names())

	assert.Equal(t, biomed.DisplayRow{Word: "lung cancer", Entity: "Disease"}, rows[0])
	assert.Equal(t, biomed.DisplayRow{Word: " diabetes ", Entity: "Disease_disorder"}, rows[3])

	var categories []biomed.Category
	for _, e := range entities {
		categories = append(categories, e.Category)
	}
	assert.Equal(t, []biomed.Category{
		biomed.CategoryDisease, biomed.CategoryDrug, biomed.CategoryDisease, biomed.CategoryDisease,
		biomed.CategoryGeneProtein, biomed.CategorySymptom, biomed.CategoryUnknown,
	}, categories)
	assert.InDelta(t, 0.91, entities[1].Score, 1e-9)
}

func TestReduceSpans_Empty(t *testing.T) {
	entities, rows, diseases := ReduceSpans(nil)
	assert.NotNil(t, entities)
	assert.NotNil(t, rows)
	assert.True(t, diseases.IsEmpty())
}

func TestReduceExtraction(t *testing.T) {
	result := ExtractionResult{
		Entities: []biomed.Entity{
			{Category: biomed.CategoryDisease, Label: "Diseases", Text: "asthma", Context: "history of asthma"},
			{Category: biomed.CategoryDrug, Label: "Drugs", Text: "albuterol", Context: "albuterol inhaler"},
		},
		Diseases: []string{"asthma", "Asthma"},
	}
	entities, rows, diseases := ReduceExtraction(result)

	assert.Equal(t, result.Entities, entities)
	assert.Equal(t, []biomed.DisplayRow{
		{Category: "Diseases", Entity: "asthma", Context: "history of asthma"},
		{Category: "Drugs", Entity: "albuterol", Context: "albuterol inhaler"},
	}, rows)
	assert.Equal(t, []string{"asthma"}, diseases.Names())
}
