package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Error kinds surfaced to callers. Every store failure wraps exactly one of
// these so the pipeline can classify it with errors.Is.
var (
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("access denied")
	ErrTransient    = errors.New("transient store error")
)

// Config contains the information required to talk to an object store.
type Config struct {
	Provider  string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Client represents the capabilities the relay pipeline expects. Containers
// are addressed per call; implementations must be safe for concurrent use.
type Client interface {
	Get(ctx context.Context, container, key string) (io.ReadCloser, ObjectInfo, error)
	Put(ctx context.Context, container, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) error
	Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error
	Remove(ctx context.Context, container, key string) error
	Close() error
}

// New creates an object store client based on the given configuration.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "minio", "s3":
		return newMinioClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}

type minioClient struct {
	client *minio.Client
}

func newMinioClient(cfg Config) (Client, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioClient{client: cl}, nil
}

func (m *minioClient) Get(ctx context.Context, container, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := m.client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classify("get object", err)
	}

	// GetObject is lazy; Stat forces the request so missing objects are
	// reported here instead of on the first Read.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close() //nolint:errcheck
		return nil, ObjectInfo{}, classify("stat object", err)
	}

	return obj, ObjectInfo{Key: stat.Key, Size: stat.Size, ContentType: stat.ContentType}, nil
}

func (m *minioClient) Put(ctx context.Context, container, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	}
	if _, err := m.client.PutObject(ctx, container, key, reader, size, opts); err != nil {
		return classify("put object", err)
	}
	return nil
}

func (m *minioClient) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstContainer, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcContainer, Object: srcKey},
	)
	if err != nil {
		return classify("copy object", err)
	}
	return nil
}

func (m *minioClient) Remove(ctx context.Context, container, key string) error {
	if err := m.client.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{}); err != nil {
		return classify("remove object", err)
	}
	return nil
}

func (m *minioClient) Close() error {
	return nil
}

// classify maps a minio error onto one of the package error kinds.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %v", op, ErrAccessDenied, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
}
