package minio

import (
	"bytes"
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// Metadata keys stored with every archived upload.
const (
	MetaSessionID = "Session-Id"
	MetaFileName  = "File-Name"
)

// UploadRepository archives the documents users submit for analysis.
type UploadRepository interface {
	Archive(ctx context.Context, req *ArchiveRequest) (*UploadResult, error)
	Exists(ctx context.Context, objectKey string) (bool, error)
	GetMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error)
	List(ctx context.Context, prefix string, maxKeys int) ([]*ObjectMetadata, error)
	Delete(ctx context.Context, objectKey string) error
	// ListSession returns the uploads archived for one session, with their
	// stored metadata.
	ListSession(ctx context.Context, sessionID string) ([]*ObjectMetadata, error)
	// DeleteSession removes every upload of a session and returns how many
	// objects were deleted.
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

// ArchiveRequest describes one uploaded document.
type ArchiveRequest struct {
	SessionID   string
	FileName    string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

type ObjectMetadata struct {
	ObjectKey    string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

type minioRepository struct {
	client *MinIOClient
	logger logging.Logger
	now    func() time.Time
}

func NewMinIORepository(client *MinIOClient, log logging.Logger) UploadRepository {
	return &minioRepository{
		client: client,
		logger: logging.OrNop(log).Named("upload_archive"),
		now:    time.Now,
	}
}

// ObjectKey lays uploads out as uploads/YYYY/MM/DD/<session>/<file>. The
// file part keeps only the base name of what the user sent.
func ObjectKey(at time.Time, sessionID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = uuid.NewString()
	}
	if sessionID == "" {
		sessionID = "anonymous"
	}
	return path.Join(uploadsPrefix, at.UTC().Format("2006/01/02"), sessionID, base)
}

// SessionOfKey returns the session segment of an upload key, or "" when key
// is not laid out by ObjectKey.
func SessionOfKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) != 6 || parts[0] != uploadsPrefix {
		return ""
	}
	return parts[4]
}

const uploadsPrefix = "uploads"

func (r *minioRepository) Archive(ctx context.Context, req *ArchiveRequest) (*UploadResult, error) {
	if req == nil || len(req.Data) == 0 {
		return nil, ErrInvalidRequest
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Data[:min(512, len(req.Data))])
	}
	now := r.now()
	key := ObjectKey(now, req.SessionID, req.FileName)

	opts := minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			MetaSessionID: req.SessionID,
			MetaFileName:  req.FileName,
		},
	}
	bucket := r.client.Bucket()
	info, err := r.client.GetClient().PutObject(ctx, bucket, key, bytes.NewReader(req.Data), int64(len(req.Data)), opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageFailed, "upload failed")
	}
	r.logger.Debug("archived upload",
		logging.String("key", key),
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.Int("size", len(req.Data)),
	)
	return &UploadResult{
		Bucket:     info.Bucket,
		ObjectKey:  info.Key,
		ETag:       info.ETag,
		Size:       info.Size,
		UploadedAt: now,
	}, nil
}

func (r *minioRepository) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := r.client.GetClient().StatObject(ctx, r.client.Bucket(), objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageFailed, "stat failed")
	}
	return true, nil
}

func (r *minioRepository) GetMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error) {
	info, err := r.client.GetClient().StatObject(ctx, r.client.Bucket(), objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageFailed, "stat failed")
	}
	return &ObjectMetadata{
		ObjectKey: objectKey, Size: info.Size, ContentType: info.ContentType,
		ETag: info.ETag, LastModified: info.LastModified, Metadata: info.UserMetadata,
	}, nil
}

func (r *minioRepository) List(ctx context.Context, prefix string, maxKeys int) ([]*ObjectMetadata, error) {
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	ch := r.client.GetClient().ListObjects(ctx, r.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   maxKeys,
	})
	var objects []*ObjectMetadata
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageFailed, "list failed")
		}
		objects = append(objects, &ObjectMetadata{
			ObjectKey: obj.Key, Size: obj.Size, LastModified: obj.LastModified, ETag: obj.ETag,
		})
		if len(objects) >= maxKeys {
			break
		}
	}
	return objects, nil
}

func (r *minioRepository) Delete(ctx context.Context, objectKey string) error {
	if err := r.client.GetClient().RemoveObject(ctx, r.client.Bucket(), objectKey, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFailed, "delete failed")
	}
	return nil
}

func (r *minioRepository) ListSession(ctx context.Context, sessionID string) ([]*ObjectMetadata, error) {
	if sessionID == "" {
		return nil, ErrInvalidRequest
	}
	all, err := r.List(ctx, uploadsPrefix+"/", 0)
	if err != nil {
		return nil, err
	}
	var out []*ObjectMetadata
	for _, obj := range all {
		if SessionOfKey(obj.ObjectKey) != sessionID {
			continue
		}
		meta, err := r.GetMetadata(ctx, obj.ObjectKey)
		if err == ErrObjectNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

func (r *minioRepository) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	objects, err := r.ListSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	for i, obj := range objects {
		if err := r.Delete(ctx, obj.ObjectKey); err != nil {
			return i, err
		}
	}
	r.logger.Info("session uploads deleted",
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("objects", len(objects)),
	)
	return len(objects), nil
}
