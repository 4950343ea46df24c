package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// The interfaces below abstract the Google Cloud Storage client so GCSSink can
// be tested without a real bucket.

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) GCSWriter
}

// GCSWriter abstracts a *storage.Writer.
type GCSWriter interface {
	io.WriteCloser
}

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes a *storage.Client conform to GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketHandleAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketHandleAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketHandleAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectHandleAdapter{handle: a.handle.Object(name)}
}

type gcsObjectHandleAdapter struct {
	handle *storage.ObjectHandle
}

// NewWriter returns a *storage.Writer tagged as a PDF document.
func (a *gcsObjectHandleAdapter) NewWriter(ctx context.Context) GCSWriter {
	w := a.handle.NewWriter(ctx)
	w.ContentType = "application/pdf"
	return w
}

// GCSSinkConfig holds configuration for GCSSink.
type GCSSinkConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSSink writes receipt documents to a Cloud Storage bucket.
type GCSSink struct {
	client GCSClient
	config GCSSinkConfig
	logger zerolog.Logger
}

// NewGCSSink creates a sink for the configured bucket.
func NewGCSSink(client GCSClient, config GCSSinkConfig, logger zerolog.Logger) (*GCSSink, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSSink{
		client: client,
		config: config,
		logger: logger.With().Str("component", "GCSSink").Str("bucket", config.BucketName).Logger(),
	}, nil
}

// Write streams r into the object prefix/name and returns its gs:// location.
// A failed copy cancels the writer's context so no partial object is committed.
func (s *GCSSink) Write(ctx context.Context, name string, r io.Reader) (string, error) {
	objectName := path.Join(s.config.ObjectPrefix, name)
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := s.client.Bucket(s.config.BucketName).Object(objectName).NewWriter(writeCtx)

	n, err := io.Copy(writer, r)
	if err != nil {
		cancel()
		_ = writer.Close()
		return "", fmt.Errorf("failed to copy data to GCS object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", objectName, err)
	}

	s.logger.Info().Str("object_name", objectName).Int64("bytes", n).Msg("Stored receipt document in GCS.")
	return fmt.Sprintf("gs://%s/%s", s.config.BucketName, objectName), nil
}
