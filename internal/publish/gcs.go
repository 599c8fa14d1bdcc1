// Package publish mirrors final deliverables to a GCS bucket. Uploads use
// the DoesNotExist precondition: an object that is already there means a
// previous run published it, which counts as success.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSPublisher implements ports.ArtifactWriter over one bucket.
type GCSPublisher struct {
	bucket *storage.BucketHandle
	client *storage.Client
}

// NewGCSPublisher creates the client and binds the bucket.
func NewGCSPublisher(ctx context.Context, bucketName string) (*GCSPublisher, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("publisher requires a bucket name")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSPublisher{bucket: client.Bucket(bucketName), client: client}, nil
}

// Write uploads one deliverable to <owner>/<unit>/<name>.
func (p *GCSPublisher) Write(ctx context.Context, owner, unit, name string, data []byte) error {
	objectName := path.Join(owner, unit, name)
	writer := p.bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			slog.Info("object already published, skipping", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			slog.Info("object already published, skipping", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write for %s: %w", objectName, err)
	}
	return nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// Close releases the underlying client.
func (p *GCSPublisher) Close() error {
	return p.client.Close()
}
