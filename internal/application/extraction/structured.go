package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// rawLogLimit caps raw model responses in log lines.
const rawLogLimit = 512

// ExtractionResult is the outcome of one structured extraction call.
type ExtractionResult struct {
	Entities    []biomed.Entity `json:"entities"`
	Diseases    []string        `json:"diseases"`
	RawResponse string          `json:"raw_response,omitempty"`
	// Malformed is set when the answer held no parseable extraction document.
	Malformed bool `json:"malformed,omitempty"`
}

func emptyResult() ExtractionResult {
	return ExtractionResult{Entities: []biomed.Entity{}, Diseases: []string{}}
}

// StructuredExtractor asks a generative model for categorized entities.
type StructuredExtractor struct {
	model   llm.Model
	prompts *llm.PromptBuilder
	logger  logging.Logger
}

// NewStructuredExtractor builds an extractor on model.
func NewStructuredExtractor(model llm.Model, logger logging.Logger) *StructuredExtractor {
	return &StructuredExtractor{
		model:   model,
		prompts: llm.MustPromptBuilder(),
		logger:  logging.OrNop(logger).Named("structured_extractor"),
	}
}

// Analyze makes one model call for text. A malformed answer is recovered:
// the result is empty, Malformed is set, RawResponse keeps the answer and
// no error is returned. A failed call returns an empty result and the error.
func (x *StructuredExtractor) Analyze(ctx context.Context, text string) (ExtractionResult, error) {
	prompt, err := x.prompts.Extraction(text)
	if err != nil {
		return emptyResult(), errors.Wrap(err, errors.ErrCodeInternal, "building extraction prompt")
	}

	raw, err := x.model.Generate(ctx, prompt)
	if err != nil {
		x.logger.Warn("extraction call failed",
			logging.String(logging.FieldModel, x.model.Name()),
			logging.Err(err),
		)
		return emptyResult(), asGenerativeError(err, x.model.Name())
	}

	result := parseExtraction(raw)
	if result.Malformed {
		x.logger.Warn("malformed extraction response",
			logging.String(logging.FieldErrorCode, string(errors.ErrCodeMalformedExtraction)),
			logging.String(logging.FieldModel, x.model.Name()),
			logging.Truncated("raw_response", raw, rawLogLimit),
		)
	}
	return result, nil
}

// parseExtraction recovers the extraction document from a raw answer.
func parseExtraction(raw string) ExtractionResult {
	result := emptyResult()
	result.RawResponse = raw

	doc, ok := ExtractJSON(raw)
	if !ok {
		result.Malformed = true
		return result
	}
	if err := ValidateShape(extractionSchemaLoader, doc); err != nil {
		result.Malformed = true
		return result
	}

	var categories map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &categories); err != nil {
		result.Malformed = true
		return result
	}

	for _, key := range biomed.CategoryKeys {
		var items []json.RawMessage
		if raw, ok := categories[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				continue
			}
		}
		category := biomed.CategoryFromKey(key)
		label := biomed.Capitalize(key)
		for _, item := range items {
			text, sentence, ok := entryFields(item)
			if !ok {
				continue
			}
			result.Entities = append(result.Entities, biomed.Entity{
				Category: category,
				Label:    label,
				Text:     text,
				Context:  sentence,
			})
			if category == biomed.CategoryDisease {
				result.Diseases = append(result.Diseases, text)
			}
		}
	}
	return result
}

// entryFields returns the text and context of an entry holding both keys.
// Values need not be non-empty strings: null reads as "", other scalars and
// nested values keep their JSON spelling.
func entryFields(item json.RawMessage) (text, sentence string, ok bool) {
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(item, &entry); err != nil {
		return "", "", false
	}
	rawText, tok := entry["text"]
	rawContext, cok := entry["context"]
	if !tok || !cok {
		return "", "", false
	}
	return fieldString(rawText), fieldString(rawContext), true
}

func fieldString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return ""
	}
	if f, isNum := v.(float64); isNum {
		return fmt.Sprint(f)
	}
	return string(bytes.TrimSpace(raw))
}

// asGenerativeError keeps coded errors and reports everything else as a
// failed generative call.
func asGenerativeError(err error, model string) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.GenerativeCallFailed(err, model)
}
