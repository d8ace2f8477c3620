// Package recommendation asks a generative model which drugs treat the
// diseases found by an analysis.
package recommendation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/turtacn/BioRx-Intelligence/internal/application/extraction"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// Mode selects how diseases are put to the model.
type Mode string

const (
	// ModePerDisease asks one free-text question per disease.
	ModePerDisease Mode = "per_disease"
	// ModeBatch asks for a JSON object covering every disease at once.
	ModeBatch Mode = "batch"
)

// ParseMode accepts "per_disease" and "batch" in any case. An empty string
// selects ModePerDisease.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePerDisease, "":
		return ModePerDisease, nil
	case ModeBatch:
		return ModeBatch, nil
	default:
		return "", errors.InvalidParam("unknown recommendation mode " + s)
	}
}

const rawLogLimit = 512

// A batch answer must be a JSON object. Values are checked one by one so a
// single odd value only costs its own disease.
var batchSchemaLoader = gojsonschema.NewStringLoader(`{"type": "object"}`)

// Engine builds RecommendationMaps. It holds no per-request state.
type Engine struct {
	model    llm.Model
	prompts  *llm.PromptBuilder
	maxDrugs int
	logger   logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDrugs caps drug lists below biomed.MaxDrugsPerDisease.
func WithMaxDrugs(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= biomed.MaxDrugsPerDisease {
			e.maxDrugs = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l).Named("recommendation") }
}

// NewEngine builds an engine on model.
func NewEngine(model llm.Model, opts ...Option) *Engine {
	e := &Engine{
		model:    model,
		prompts:  llm.MustPromptBuilder(),
		maxDrugs: biomed.MaxDrugsPerDisease,
		logger:   logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Recommend returns drugs for every disease in diseases, keyed in set order
// and spelling. An empty set makes no model call. Failed generative calls
// and malformed batch answers are recovered; ModelUnavailable and context
// errors are returned.
func (e *Engine) Recommend(ctx context.Context, diseases biomed.DiseaseSet, mode Mode) (biomed.RecommendationMap, error) {
	out := biomed.RecommendationMap{Items: []biomed.Recommendation{}}
	if diseases.IsEmpty() {
		return out, nil
	}
	switch mode {
	case ModeBatch:
		return e.batch(ctx, diseases)
	case ModePerDisease, "":
		return e.perDisease(ctx, diseases)
	default:
		return out, errors.InvalidParam("unknown recommendation mode " + string(mode))
	}
}

func (e *Engine) perDisease(ctx context.Context, diseases biomed.DiseaseSet) (biomed.RecommendationMap, error) {
	out := biomed.RecommendationMap{Items: make([]biomed.Recommendation, 0, diseases.Len())}
	for _, disease := range diseases.Names() {
		prompt, err := e.prompts.PerDisease(disease)
		if err != nil {
			return biomed.RecommendationMap{Items: []biomed.Recommendation{}}, errors.Wrap(err, errors.ErrCodeInternal, "building recommendation prompt")
		}
		answer, err := e.model.Generate(ctx, prompt)
		if err != nil {
			if fatal(ctx, err) {
				return biomed.RecommendationMap{Items: []biomed.Recommendation{}}, err
			}
			e.logger.Warn("recommendation call failed",
				logging.String("disease", disease),
				logging.String(logging.FieldModel, e.model.Name()),
				logging.String(logging.FieldErrorCode, string(errors.ErrCodeGenerativeCallFailed)),
				logging.Err(err),
			)
			out.Items = append(out.Items, biomed.Empty(disease))
			continue
		}
		rec := biomed.NewTextRecommendation(disease, answer)
		rec.Drugs = capDrugs(rec.Drugs, e.maxDrugs)
		out.Items = append(out.Items, rec)
	}
	return out, nil
}

func (e *Engine) batch(ctx context.Context, diseases biomed.DiseaseSet) (biomed.RecommendationMap, error) {
	prompt, err := e.prompts.Batch(diseases.Names(), e.maxDrugs)
	if err != nil {
		return biomed.RecommendationMap{Items: []biomed.Recommendation{}}, errors.Wrap(err, errors.ErrCodeInternal, "building recommendation prompt")
	}
	raw, err := e.model.Generate(ctx, prompt)
	if err != nil {
		if fatal(ctx, err) {
			return biomed.RecommendationMap{Items: []biomed.Recommendation{}}, err
		}
		e.logger.Warn("batch recommendation call failed",
			logging.String(logging.FieldModel, e.model.Name()),
			logging.Int("diseases", diseases.Len()),
			logging.Err(err),
		)
		return fill(diseases, nil, e.maxDrugs), nil
	}

	lists, ok := parseBatch(raw, diseases)
	if !ok {
		e.logger.Warn("malformed batch recommendation response",
			logging.String(logging.FieldErrorCode, string(errors.ErrCodeMalformedExtraction)),
			logging.String(logging.FieldModel, e.model.Name()),
			logging.Truncated("raw_response", raw, rawLogLimit),
		)
		return biomed.RecommendationMap{Items: []biomed.Recommendation{}, Malformed: true}, nil
	}
	return fill(diseases, lists, e.maxDrugs), nil
}

// parseBatch recovers the {disease: [drugs]} object from raw and re-keys it
// to the member spelling of diseases. Keys naming no member are dropped, as
// are later keys naming an already seen member.
func parseBatch(raw string, diseases biomed.DiseaseSet) (map[string][]string, bool) {
	doc, ok := extraction.ExtractJSON(raw)
	if !ok {
		return nil, false
	}
	if err := extraction.ValidateShape(batchSchemaLoader, doc); err != nil {
		return nil, false
	}

	// Decode into ordered pairs so that the first of two equivalent keys wins.
	dec := json.NewDecoder(strings.NewReader(doc))
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	lists := make(map[string][]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		member, known := diseases.Lookup(key)
		if !known {
			continue
		}
		if _, seen := lists[member]; seen {
			continue
		}
		lists[member] = drugStrings(value)
	}
	return lists, true
}

// drugStrings returns the string items of a JSON array. Anything that is not
// an array yields no drugs.
func drugStrings(value json.RawMessage) []string {
	var items []interface{}
	if err := json.Unmarshal(value, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// fill builds the map in set order, using the marker where lists has no
// drugs for a disease. Lists are capped at max.
func fill(diseases biomed.DiseaseSet, lists map[string][]string, max int) biomed.RecommendationMap {
	out := biomed.RecommendationMap{Items: make([]biomed.Recommendation, 0, diseases.Len())}
	for _, name := range diseases.Names() {
		drugs := capDrugs(biomed.CleanDrugList(lists[name]), max)
		out.Items = append(out.Items, biomed.NewRecommendation(name, drugs))
	}
	return out
}

func capDrugs(drugs []string, max int) []string {
	if len(drugs) > max {
		return drugs[:max]
	}
	return drugs
}

// fatal reports whether err must abort the whole request.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		errors.IsCode(err, errors.ErrCodeModelUnavailable)
}
