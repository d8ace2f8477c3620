// Package extraction turns text into classified biomedical entities and the
// set of diseases they mention, either through a token classification model
// or through a generative model answering a structured prompt.
package extraction

import (
	"context"
	"strings"

	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/biomed_ner"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// Extraction is the variant-independent outcome of an extraction.
type Extraction struct {
	Variant     biomed.Variant      `json:"variant"`
	Entities    []biomed.Entity     `json:"entities"`
	Rows        []biomed.DisplayRow `json:"rows"`
	Diseases    biomed.DiseaseSet   `json:"diseases"`
	RawResponse string              `json:"raw_response,omitempty"`
	Malformed   bool                `json:"malformed,omitempty"`
}

// Extractor extracts entities from text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
	Variant() biomed.Variant
}

func emptyExtraction(v biomed.Variant) Extraction {
	return Extraction{Variant: v, Entities: []biomed.Entity{}, Rows: []biomed.DisplayRow{}}
}

// RecognizerBacked extracts with a token classification model.
type RecognizerBacked struct {
	recognizer biomed_ner.Recognizer
	logger     logging.Logger
}

func NewRecognizerBacked(recognizer biomed_ner.Recognizer, logger logging.Logger) *RecognizerBacked {
	return &RecognizerBacked{recognizer: recognizer, logger: logging.OrNop(logger).Named("recognizer_extractor")}
}

func (r *RecognizerBacked) Variant() biomed.Variant { return biomed.VariantRecognizer }

// Extract fails with ModelUnavailable when the recognizer cannot be reached.
func (r *RecognizerBacked) Extract(ctx context.Context, text string) (Extraction, error) {
	spans, err := r.recognizer.Recognize(ctx, text)
	if err != nil {
		return emptyExtraction(biomed.VariantRecognizer), err
	}
	out := emptyExtraction(biomed.VariantRecognizer)
	out.Entities, out.Rows, out.Diseases = ReduceSpans(spans)

	r.logger.Debug("recognizer extraction",
		logging.Int("spans", len(spans)),
		logging.Int("diseases", out.Diseases.Len()),
	)
	return out, nil
}

// GenerativeBacked extracts with a structured generative prompt.
type GenerativeBacked struct {
	extractor *StructuredExtractor
}

func NewGenerativeBacked(extractor *StructuredExtractor) *GenerativeBacked {
	return &GenerativeBacked{extractor: extractor}
}

func (g *GenerativeBacked) Variant() biomed.Variant { return biomed.VariantGenerative }

// Extract returns an empty extraction alongside a GenerativeCallFailed
// error when the model call fails. Malformed answers are not errors.
func (g *GenerativeBacked) Extract(ctx context.Context, text string) (Extraction, error) {
	result, err := g.extractor.Analyze(ctx, text)
	out := emptyExtraction(biomed.VariantGenerative)
	out.Entities, out.Rows, out.Diseases = ReduceExtraction(result)
	out.RawResponse = result.RawResponse
	out.Malformed = result.Malformed
	return out, err
}

// New builds the extractor for variant. The recognizer is required for the
// recognizer variant and the model for the generative one.
func New(variant string, recognizer biomed_ner.Recognizer, model llm.Model, logger logging.Logger) (Extractor, error) {
	switch biomed.Variant(strings.ToLower(strings.TrimSpace(variant))) {
	case biomed.VariantRecognizer:
		if recognizer == nil {
			return nil, errors.InvalidParam("recognizer variant needs a recognizer")
		}
		return NewRecognizerBacked(recognizer, logger), nil
	case biomed.VariantGenerative:
		if model == nil {
			return nil, errors.InvalidParam("generative variant needs a model")
		}
		return NewGenerativeBacked(NewStructuredExtractor(model, logger)), nil
	default:
		return nil, errors.InvalidParam("unknown extraction variant " + variant)
	}
}

var (
	_ Extractor = (*RecognizerBacked)(nil)
	_ Extractor = (*GenerativeBacked)(nil)
)
