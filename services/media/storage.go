package mediasvc

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
)

// NewStorage returns the storage backend selected by the config.
func NewStorage(ctx context.Context, conf *core.Config) (Storage, error) {
	switch conf.Media.Backend {
	case "gcs":
		return NewGCSStorage(ctx, conf.Media.GCSBucket, conf.Media.GCSPublicBaseURL)
	case "", "local":
		return NewLocalStorage(conf.Media.UploadDir, conf.Media.PublicPrefix), nil
	default:
		return nil, errors.Errorf("unknown media backend %q", conf.Media.Backend)
	}
}

// LocalStorage writes files under a directory served statically by the API.
type LocalStorage struct {
	dir    string
	prefix string
}

var _ Storage = (*LocalStorage)(nil)

func NewLocalStorage(dir, publicPrefix string) *LocalStorage {
	return &LocalStorage{dir: dir, prefix: "/" + strings.Trim(publicPrefix, "/")}
}

func (s *LocalStorage) Save(_ context.Context, key, _ string, r io.Reader) (string, error) {
	fp := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating upload dir")
	}
	f, err := os.Create(fp)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing file")
	}
	return path.Join(s.prefix, key), nil
}

// GCSStorage uploads to a Google Cloud Storage bucket.
type GCSStorage struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

var _ Storage = (*GCSStorage)(nil)

func NewGCSStorage(ctx context.Context, bucket, publicBaseURL string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, errors.New("missing GCS bucket name")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com"
	}
	return &GCSStorage{client: client, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/") + "/" + bucket}, nil
}

func (s *GCSStorage) Save(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "finalizing %s", key)
	}
	return s.baseURL + "/" + key, nil
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}
