// Package document converts uploaded artifacts into plain text.
package document

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// Kind is a supported document format.
type Kind string

const (
	KindText Kind = "txt"
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindCSV  Kind = "csv"
)

// DefaultMaxBytes caps the size of a single upload.
const DefaultMaxBytes = 10 << 20

var mimeKinds = map[string]Kind{
	"text/plain":      KindText,
	"application/pdf": KindPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDOCX,
	"text/csv":        KindCSV,
	"application/csv": KindCSV,
}

var extKinds = map[string]Kind{
	".txt":  KindText,
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".csv":  KindCSV,
}

// Source is an uploaded artifact.
type Source struct {
	// Name is the original file name. Its extension is the last resort for
	// kind detection.
	Name        string
	ContentType string
	// Kind overrides detection when set.
	Kind Kind
	Data []byte
}

// ResolveKind picks the document kind from the explicit kind, then the MIME
// type, then the file extension.
func ResolveKind(src Source) (Kind, error) {
	if src.Kind != "" {
		k := Kind(strings.ToLower(string(src.Kind)))
		if _, ok := extKinds["."+string(k)]; ok {
			return k, nil
		}
		return "", errors.UnsupportedFormat(string(src.Kind))
	}
	if src.ContentType != "" {
		mt, _, err := mime.ParseMediaType(src.ContentType)
		if err == nil {
			if k, ok := mimeKinds[strings.ToLower(mt)]; ok {
				return k, nil
			}
		}
	}
	if k, ok := extKinds[strings.ToLower(filepath.Ext(src.Name))]; ok {
		return k, nil
	}

	detail := src.Name
	if detail == "" {
		detail = src.ContentType
	}
	return "", errors.UnsupportedFormat(detail)
}

// Loader turns a Source into text.
type Loader struct {
	maxBytes int64
	logger   logging.Logger
}

type Option func(*Loader)

// WithMaxBytes sets the upload size limit. Non-positive values keep the
// default.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) { l.logger = logging.OrNop(logger) }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{maxBytes: DefaultMaxBytes, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the text content of src. Unknown kinds fail with
// UnsupportedFormat and undecodable content with DecodeError.
func (l *Loader) Load(ctx context.Context, src Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind, err := ResolveKind(src)
	if err != nil {
		return "", err
	}
	if int64(len(src.Data)) > l.maxBytes {
		return "", errors.UnsupportedFormat(string(kind)).WithDetail("too large")
	}

	var text string
	switch kind {
	case KindText:
		text, err = loadText(src.Data)
	case KindPDF:
		text, err = loadPDF(src.Data, l.logger)
	case KindDOCX:
		text, err = loadDOCX(src.Data)
	case KindCSV:
		text, err = loadCSV(src.Data)
	}
	if err != nil {
		l.logger.Warn("document decode failed",
			logging.String("name", src.Name),
			logging.String("kind", string(kind)),
			logging.Err(err),
		)
		return "", errors.DecodeError(err, src.Name)
	}

	l.logger.Debug("document loaded",
		logging.String("name", src.Name),
		logging.String("kind", string(kind)),
		logging.Int("bytes", len(src.Data)),
		logging.Int("chars", len(text)),
	)
	return text, nil
}
