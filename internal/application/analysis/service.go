// Package analysis runs the extraction and recommendation pipeline over an
// explicit, caller-held session.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/application/document"
	"github.com/turtacn/BioRx-Intelligence/internal/application/extraction"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/prometheus"
	miniostore "github.com/turtacn/BioRx-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// User-facing messages.
var (
	WarningEmptyInput = errors.DefaultMessageForCode(errors.ErrCodeEmptyInput)
	WarningMalformed  = errors.DefaultMessageForCode(errors.ErrCodeMalformedExtraction)
	WarningCallFailed = errors.DefaultMessageForCode(errors.ErrCodeGenerativeCallFailed)
)

const (
	InfoNoEntities = "No biomedical entities detected."
	InfoNoDiseases = "No diseases detected."
)

// SourceText names sessions analysed from pasted text.
const SourceText = "text"

// Service runs analyses and recommendations. Neither method mutates the
// session it is given.
type Service interface {
	// Analyze extracts entities from the input and returns a fresh session.
	// Empty input returns prev with a warning and makes no model call. On
	// error prev is returned unchanged.
	Analyze(ctx context.Context, prev biomed.Session, input *AnalyzeInput) (biomed.Session, error)
	// Recommend returns a copy of s whose recommendations are replaced. On
	// error s is returned unchanged.
	Recommend(ctx context.Context, s biomed.Session, mode recommendation.Mode) (biomed.Session, error)
	Variant() biomed.Variant
}

// AnalyzeInput is pasted text and an optional upload. The upload wins when
// both are present.
type AnalyzeInput struct {
	Text     string
	Document *document.Source
	// RecommendMode, when set, requests recommendations right after a
	// successful analysis.
	RecommendMode recommendation.Mode
}

// Archiver stores uploads.
type Archiver interface {
	Archive(ctx context.Context, req *miniostore.ArchiveRequest) (*miniostore.UploadResult, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event biomed.DomainEvent) error
}

// Recommender builds recommendation maps.
type Recommender interface {
	Recommend(ctx context.Context, diseases biomed.DiseaseSet, mode recommendation.Mode) (biomed.RecommendationMap, error)
}

// Deps are the service collaborators. Loader, Extractor and Recommender are
// required; the rest are optional.
type Deps struct {
	Loader      *document.Loader
	Extractor   extraction.Extractor
	Recommender Recommender
	Archiver    Archiver
	Publisher   EventPublisher
	Metrics     *prometheus.AppMetrics
	Logger      logging.Logger
}

type serviceImpl struct {
	loader      *document.Loader
	extractor   extraction.Extractor
	recommender Recommender
	archiver    Archiver
	publisher   EventPublisher
	metrics     *prometheus.AppMetrics
	logger      logging.Logger
	now         func() time.Time
}

// NewService wires a Service.
func NewService(d Deps) (Service, error) {
	if d.Loader == nil || d.Extractor == nil || d.Recommender == nil {
		return nil, errors.InvalidParam("analysis service needs a loader, an extractor and a recommender")
	}
	if d.Metrics == nil {
		d.Metrics = prometheus.NewNoopAppMetrics()
	}
	return &serviceImpl{
		loader:      d.Loader,
		extractor:   d.Extractor,
		recommender: d.Recommender,
		archiver:    d.Archiver,
		publisher:   d.Publisher,
		metrics:     d.Metrics,
		logger:      logging.OrNop(d.Logger).Named("analysis"),
		now:         time.Now,
	}, nil
}

func (s *serviceImpl) Variant() biomed.Variant { return s.extractor.Variant() }

func (s *serviceImpl) Analyze(ctx context.Context, prev biomed.Session, input *AnalyzeInput) (biomed.Session, error) {
	if input == nil {
		input = &AnalyzeInput{}
	}
	text, source := input.Text, SourceText
	if input.Document != nil {
		loaded, err := s.load(ctx, input.Document)
		if err != nil {
			return prev, err
		}
		text, source = loaded, input.Document.Name
	}

	if strings.TrimSpace(text) == "" {
		out := prev
		out.Warning = WarningEmptyInput
		s.logger.Info("empty analysis input", logging.String(logging.FieldErrorCode, string(errors.ErrCodeEmptyInput)))
		return out, nil
	}

	start := s.now()
	result, err := s.extractor.Extract(ctx, text)
	elapsed := s.now().Sub(start)
	variant := string(s.extractor.Variant())
	callFailed := false
	if err != nil {
		prometheus.RecordAnalysis(s.metrics, variant, elapsed, false, nil)
		prometheus.RecordError(s.metrics, "extraction", string(errors.GetCode(err)))
		if !errors.IsCode(err, errors.ErrCodeGenerativeCallFailed) {
			s.logger.Warn("analysis failed", logging.String("variant", variant), logging.Err(err))
			return prev, err
		}
		s.logger.Warn("extraction call failed, continuing with no entities",
			logging.String("variant", variant),
			logging.String(logging.FieldErrorCode, string(errors.ErrCodeGenerativeCallFailed)),
			logging.Err(err),
		)
		callFailed = true
	} else {
		prometheus.RecordAnalysis(s.metrics, variant, elapsed, true, countByCategory(result.Entities))
	}

	session := biomed.NewSession()
	session.Variant = result.Variant
	session.Source = source
	session.Entities = result.Entities
	session.Rows = result.Rows
	session.Diseases = result.Diseases
	session.RawResponse = result.RawResponse
	session.Malformed = result.Malformed
	session.AnalyzedAt = s.now().UTC()
	switch {
	case callFailed:
		session.Warning = WarningCallFailed
	case result.Malformed:
		session.Warning = WarningMalformed
		prometheus.RecordMalformed(s.metrics, "extraction")
	}

	s.logger.Info("analysis completed",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String("variant", variant),
		logging.Int("entities", len(session.Entities)),
		logging.Int("diseases", session.Diseases.Len()),
		logging.Duration("elapsed", elapsed),
	)

	archiveKey := ""
	if input.Document != nil {
		archiveKey = s.archive(ctx, session.ID, input.Document)
	}
	s.publish(ctx, biomed.NewAnalysisCompletedEvent(session, archiveKey))

	if input.RecommendMode != "" {
		withRecs, err := s.Recommend(ctx, session, input.RecommendMode)
		if err != nil {
			return prev, err
		}
		session = withRecs
	}
	return session, nil
}

func (s *serviceImpl) load(ctx context.Context, src *document.Source) (string, error) {
	kind := string(src.Kind)
	if k, err := document.ResolveKind(*src); err == nil {
		kind = string(k)
	}
	text, err := s.loader.Load(ctx, *src)
	prometheus.RecordDocumentLoad(s.metrics, kind, len(src.Data), err == nil)
	if err != nil {
		prometheus.RecordError(s.metrics, "document", string(errors.GetCode(err)))
		return "", err
	}
	return text, nil
}

func (s *serviceImpl) Recommend(ctx context.Context, session biomed.Session, mode recommendation.Mode) (biomed.Session, error) {
	start := s.now()
	recs, err := s.recommender.Recommend(ctx, session.Diseases, mode)
	elapsed := s.now().Sub(start)
	if err != nil {
		prometheus.RecordRecommendation(s.metrics, string(mode), session.Diseases.Len(), elapsed, false)
		prometheus.RecordError(s.metrics, "recommendation", string(errors.GetCode(err)))
		s.logger.Warn("recommendation failed",
			logging.String(logging.FieldSessionID, session.ID),
			logging.Err(err),
		)
		return session, err
	}
	prometheus.RecordRecommendation(s.metrics, string(mode), session.Diseases.Len(), elapsed, true)
	if recs.Malformed {
		prometheus.RecordMalformed(s.metrics, "recommendation")
	}

	out := session.WithRecommendations(recs)
	if recs.Malformed {
		out.Warning = WarningMalformed
	}
	if !session.Diseases.IsEmpty() {
		s.publish(ctx, biomed.RecommendationCompletedEvent{
			SessionID:   session.ID,
			Mode:        string(mode),
			Drugs:       recs.Lists(),
			Malformed:   recs.Malformed,
			CompletedAt: s.now().UTC(),
		})
	}
	return out, nil
}

// archive stores the upload and returns its key, or "" when archiving is
// off or failed.
func (s *serviceImpl) archive(ctx context.Context, sessionID string, src *document.Source) string {
	if s.archiver == nil {
		return ""
	}
	res, err := s.archiver.Archive(ctx, &miniostore.ArchiveRequest{
		SessionID:   sessionID,
		FileName:    src.Name,
		ContentType: src.ContentType,
		Data:        src.Data,
	})
	prometheus.RecordArchiveUpload(s.metrics, err == nil)
	if err != nil {
		s.logger.Warn("upload archive failed",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Err(err),
		)
		return ""
	}
	return res.ObjectKey
}

// publish is best-effort.
func (s *serviceImpl) publish(ctx context.Context, event biomed.DomainEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, event)
	prometheus.RecordEventPublish(s.metrics, event.EventType(), err == nil)
	if err != nil {
		s.logger.Warn("event publication failed",
			logging.String("event_type", event.EventType()),
			logging.String(logging.FieldSessionID, event.Key()),
			logging.Err(err),
		)
	}
}

func countByCategory(entities []biomed.Entity) map[string]int {
	out := make(map[string]int)
	for _, e := range entities {
		out[string(e.Category)]++
	}
	return out
}
