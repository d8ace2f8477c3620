package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Template names.
const (
	TemplateExtraction    = "entity_extraction"
	TemplatePerDisease    = "drugs_per_disease"
	TemplateBatchDiseases = "drugs_batch"
)

const extractionTemplate = `Extract and return only the following biomedical entities from the given text:
- Diseases
- Drugs
- Genes/Proteins
- Symptoms

Present the results in a structured JSON format with these categories:
{
    "diseases": [],
    "drugs": [],
    "genes_proteins": [],
    "symptoms": []
}

For each entity, include:
- "text": the exact text found
- "context": the sentence or phrase where it appears

Ensure the response is valid JSON format.

Text to analyze:
{{.Text}}`

const perDiseaseTemplate = `List only 1 to 3 drug names used to treat {{.Disease}}, separated by commas. No explanations, just drug names.`

const batchTemplate = `For each of the following diseases, recommend the top {{.MaxDrugs}} most commonly used drugs names only.

Return the results in JSON format:
{
    "disease_name": ["drug1", "drug2", "drug3"]
}

Diseases:
{{json .Diseases}}`

// PromptBuilder renders the fixed prompt templates.
type PromptBuilder struct {
	templates *template.Template
}

// NewPromptBuilder parses the built-in templates.
func NewPromptBuilder() (*PromptBuilder, error) {
	funcs := template.FuncMap{
		"json": func(v interface{}) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
	root := template.New("prompts").Funcs(funcs)
	for name, body := range map[string]string{
		TemplateExtraction:    extractionTemplate,
		TemplatePerDisease:    perDiseaseTemplate,
		TemplateBatchDiseases: batchTemplate,
	} {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parsing template %q: %w", name, err)
		}
	}
	return &PromptBuilder{templates: root}, nil
}

// MustPromptBuilder is NewPromptBuilder for the built-in templates, which are
// known to parse.
func MustPromptBuilder() *PromptBuilder {
	pb, err := NewPromptBuilder()
	if err != nil {
		panic(err)
	}
	return pb
}

func (pb *PromptBuilder) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := pb.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", name, err)
	}
	return buf.String(), nil
}

// Extraction renders the categorical entity extraction prompt for text.
func (pb *PromptBuilder) Extraction(text string) (string, error) {
	return pb.render(TemplateExtraction, struct{ Text string }{text})
}

// PerDisease renders the drug question for one disease.
func (pb *PromptBuilder) PerDisease(disease string) (string, error) {
	return pb.render(TemplatePerDisease, struct{ Disease string }{strings.TrimSpace(disease)})
}

// Batch renders the drug question for all diseases at once.
func (pb *PromptBuilder) Batch(diseases []string, maxDrugs int) (string, error) {
	if diseases == nil {
		diseases = []string{}
	}
	return pb.render(TemplateBatchDiseases, struct {
		Diseases []string
		MaxDrugs int
	}{diseases, maxDrugs})
}
