package biomed

import "time"

// DomainEvent is a marker interface for analysis events.
type DomainEvent interface {
	EventType() string
	// Key groups events of one session on the same partition.
	Key() string
}

// AnalysisCompletedEvent is published after an analysis produced a session.
type AnalysisCompletedEvent struct {
	SessionID   string    `json:"session_id"`
	Variant     Variant   `json:"variant"`
	Source      string    `json:"source,omitempty"`
	Diseases    []string  `json:"diseases"`
	EntityCount int       `json:"entity_count"`
	Malformed   bool      `json:"malformed"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e AnalysisCompletedEvent) EventType() string { return "analysis.completed" }
func (e AnalysisCompletedEvent) Key() string       { return e.SessionID }

// RecommendationCompletedEvent is published after recommendations were built.
type RecommendationCompletedEvent struct {
	SessionID   string              `json:"session_id"`
	Mode        string              `json:"mode"`
	Drugs       map[string][]string `json:"drugs"`
	Malformed   bool                `json:"malformed"`
	CompletedAt time.Time           `json:"completed_at"`
}

func (e RecommendationCompletedEvent) EventType() string { return "recommendation.completed" }
func (e RecommendationCompletedEvent) Key() string       { return e.SessionID }

// NewAnalysisCompletedEvent summarises a session.
func NewAnalysisCompletedEvent(s Session, archiveKey string) AnalysisCompletedEvent {
	return AnalysisCompletedEvent{
		SessionID:   s.ID,
		Variant:     s.Variant,
		Source:      s.Source,
		Diseases:    s.Diseases.Names(),
		EntityCount: len(s.Entities),
		Malformed:   s.Malformed,
		ArchiveKey:  archiveKey,
		CompletedAt: s.AnalyzedAt,
	}
}
