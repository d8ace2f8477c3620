package analysis

import "github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"

// View is the presentation-ready form of a session shared by the CLI and
// the HTTP API.
type View struct {
	Columns         []string   `json:"columns"`
	Rows            [][]string `json:"rows"`
	Diseases        []string   `json:"diseases"`
	Recommendations []string   `json:"recommendations,omitempty"`
	Warning         string     `json:"warning,omitempty"`
	Info            []string   `json:"info,omitempty"`
}

// NewView renders s. Rows follow the column layout of the session variant;
// recommendation lines read "Title Cased Disease: drugs".
func NewView(s biomed.Session) View {
	shape := s.RowShape()
	v := View{
		Columns:  shape.Columns(),
		Rows:     make([][]string, 0, len(s.Rows)),
		Diseases: s.Diseases.Names(),
		Warning:  s.Warning,
	}
	for _, r := range s.Rows {
		v.Rows = append(v.Rows, r.Cells(shape))
	}
	if s.Recommendations != nil {
		for _, rec := range s.Recommendations.Items {
			v.Recommendations = append(v.Recommendations, rec.Line())
		}
	}
	if s.Warning == "" && !s.AnalyzedAt.IsZero() {
		if len(s.Entities) == 0 {
			v.Info = append(v.Info, InfoNoEntities)
		}
		if s.Diseases.IsEmpty() {
			v.Info = append(v.Info, InfoNoDiseases)
		}
	}
	return v
}
