package extraction

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ExtractJSON returns the span from the first '{' to the last '}' of s. The
// match is greedy, so prose around a single JSON object is discarded but
// braces inside the object are kept. ok is false when there is no such span.
func ExtractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}

// Document shape of the categorical extraction answer. Entry fields are
// checked in code so that one bad entry does not void the whole answer.
const extractionSchema = `{
  "type": "object",
  "properties": {
    "diseases":       {"type": "array"},
    "drugs":          {"type": "array"},
    "genes_proteins": {"type": "array"},
    "symptoms":       {"type": "array"}
  }
}`

var extractionSchemaLoader = gojsonschema.NewStringLoader(extractionSchema)

// schemaError lists the violations of a schema check.
type schemaError struct {
	violations []string
}

func (e *schemaError) Error() string {
	return "schema violation: " + strings.Join(e.violations, "; ")
}

// ValidateShape checks doc against schema. Unparseable JSON
// is reported as an error too.
func ValidateShape(schema gojsonschema.JSONLoader, doc string) error {
	res, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	se := &schemaError{}
	for _, v := range res.Errors() {
		se.violations = append(se.violations, v.String())
	}
	return se
}
