package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Storage writes exports to a GCS bucket. Objects are create-only: saving a
// key that already exists is a no-op, so re-exporting is idempotent.
type Storage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// New uses application default credentials.
func New(ctx context.Context, bucket, prefix string) (*Storage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs storage: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	name := objectName(s.prefix, key)
	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType(key)

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			slog.Info("gcs_object_exists", "object", name)
			return nil
		}
		return fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			slog.Info("gcs_object_exists", "object", name)
			return nil
		}
		return fmt.Errorf("finalize gcs object %s: %w", name, err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name := objectName(s.prefix, key)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, domain.WrapError(domain.ErrNotFound, "open export", err)
	}
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", name, err)
	}
	return r, nil
}

func objectName(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func contentType(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
