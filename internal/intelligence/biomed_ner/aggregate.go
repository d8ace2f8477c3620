package biomed_ner

import (
	"strings"

	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/common"
)

const (
	labelOutside    = "O"
	wordpiecePrefix = "##"
)

// splitBIO separates a BIO tag into its prefix ("B", "I" or "") and base label.
func splitBIO(label string) (prefix, base string) {
	if len(label) > 2 && label[1] == '-' && (label[0] == 'B' || label[0] == 'I') {
		return label[:1], label[2:]
	}
	return "", label
}

func allAggregated(preds []common.TokenPrediction) bool {
	if len(preds) == 0 {
		return false
	}
	for _, p := range preds {
		if !p.Aggregated() {
			return false
		}
	}
	return true
}

// fromPredictions converts predictions one-to-one, dropping outside tokens.
func fromPredictions(preds []common.TokenPrediction) []Span {
	out := make([]Span, 0, len(preds))
	for _, p := range preds {
		if p.Label() == labelOutside {
			continue
		}
		out = append(out, Span{Word: p.Word, Label: p.Label(), Score: p.Score, Start: p.Start, End: p.End})
	}
	return out
}

// spanBuilder accumulates tokens of one span.
type spanBuilder struct {
	label    string
	word     strings.Builder
	start    int
	end      int
	scoreSum float64
	n        int
}

func (b *spanBuilder) add(text []rune, p common.TokenPrediction) {
	piece := p.Word
	isWordpiece := strings.HasPrefix(piece, wordpiecePrefix)
	piece = strings.TrimPrefix(piece, wordpiecePrefix)

	if b.n > 0 {
		if p.End > p.Start && validOffsets(text, b.end, p.Start) {
			b.word.WriteString(string(text[b.end:p.Start]))
		} else if !isWordpiece {
			b.word.WriteByte(' ')
		}
	} else {
		b.start = p.Start
	}
	b.word.WriteString(piece)
	if p.End > b.end || b.n == 0 {
		b.end = p.End
	}
	b.scoreSum += p.Score
	b.n++
}

func (b *spanBuilder) span() Span {
	return Span{
		Word:  b.word.String(),
		Label: b.label,
		Score: b.scoreSum / float64(b.n),
		Start: b.start,
		End:   b.end,
	}
}

func validOffsets(text []rune, from, to int) bool {
	return from >= 0 && from <= to && to <= len(text)
}

// continues reports whether token p extends the span held by cur.
func continues(text []rune, cur *spanBuilder, p common.TokenPrediction, prefix, base string) bool {
	if cur == nil {
		return false
	}
	if strings.HasPrefix(p.Word, wordpiecePrefix) {
		return true
	}
	if base != cur.label {
		return false
	}
	switch prefix {
	case "I":
		return true
	case "B":
		return false
	}
	if p.Start == cur.end {
		return true
	}
	return p.Start == cur.end+1 && validOffsets(text, cur.end, p.Start) && text[cur.end] == ' '
}

// aggregateSimple merges token-level predictions into whole-word spans. BIO
// prefixes are stripped, "##" wordpieces always join the previous span, an
// I- token joins a span of the same label, and adjacent bare labels join
// when separated by at most one space. The span score is the mean of its
// token scores. Offsets count characters, not bytes.
func aggregateSimple(text string, preds []common.TokenPrediction) []Span {
	runes := []rune(text)
	out := make([]Span, 0, len(preds))
	var cur *spanBuilder

	flush := func() {
		if cur != nil {
			out = append(out, cur.span())
			cur = nil
		}
	}

	for _, p := range preds {
		prefix, base := splitBIO(p.Label())
		if base == labelOutside {
			if cur != nil && strings.HasPrefix(p.Word, wordpiecePrefix) {
				cur.add(runes, p)
				continue
			}
			flush()
			continue
		}
		if continues(runes, cur, p, prefix, base) {
			cur.add(runes, p)
			continue
		}
		flush()
		cur = &spanBuilder{label: base}
		cur.add(runes, p)
	}
	flush()
	return out
}
