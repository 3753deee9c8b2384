package gcs

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"engagement-service/internal/domain"
	"engagement-service/internal/logger"
	"github.com/cockroachdb/errors"
	"google.golang.org/api/option"
)

const scheme = "gs://"

// Config selects the bucket and how to authenticate. An empty CredentialsFile
// falls back to application default credentials.
type Config struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	// Endpoint points the client at an emulator such as fake-gcs-server.
	Endpoint string
}

// ObjectStore keeps assignment files in a Cloud Storage bucket. Locators look
// like gs://<bucket>/<key>.
type ObjectStore struct {
	client *storage.Client
	bucket string
	prefix string
	log    *logger.Logger
}

func NewObjectStore(ctx context.Context, cfg Config, log *logger.Logger) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create storage client")
	}
	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log.With("component", "gcs", "bucket", cfg.Bucket),
	}, nil
}

func (o *ObjectStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", errors.Wrap(domain.ErrValidation, "object key is required")
	}
	if o.prefix != "" {
		key = path.Join(o.prefix, key)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := o.client.Bucket(o.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "write gcs object %s", key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "close gcs writer for %s", key)
	}
	o.log.Debug("object stored", "key", key, "size_bytes", len(data))
	return scheme + o.bucket + "/" + key, nil
}

func (o *ObjectStore) Get(ctx context.Context, locator string) ([]byte, error) {
	bucket, key, err := parseLocator(locator)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := o.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, errors.Wrapf(domain.ErrNotFound, "object %s", locator)
		}
		return nil, errors.Wrapf(err, "open gcs reader for %s", locator)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read gcs object %s", locator)
	}
	return data, nil
}

func (o *ObjectStore) Close() error {
	return o.client.Close()
}

func parseLocator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, scheme)
	if !ok {
		return "", "", errors.Wrapf(domain.ErrNotFound, "object %s", locator)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Wrapf(domain.ErrNotFound, "object %s", locator)
	}
	return bucket, key, nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".zip":
		return "application/zip"
	case ".txt":
		return "text/plain"
	default:
		return ""
	}
}
