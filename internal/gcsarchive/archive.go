// Package gcsarchive stores pipeline run reports as JSON objects in a GCS
// bucket. Application Default Credentials are assumed.
package gcsarchive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/ledger-engine/internal/logger"
)

const uploadTimeout = 2 * time.Minute

// Archive writes report objects into one bucket, reusing a shared client.
type Archive struct {
	client *storage.Client
	bucket string
}

// New creates an archive over the given bucket.
func New(client *storage.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// Upload stores data under objectName and returns the object's gs:// URI.
func (a *Archive) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: writing object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalizing object %s: %w", objectName, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, objectName)
	log := logger.FromContext(ctx)
	log.Info().
		Str("uri", uri).
		Int("bytes", len(data)).
		Msg("Report archived")
	return uri, nil
}

// Fetch downloads the bytes behind a gs:// URI, typically a previously
// archived report.
func Fetch(ctx context.Context, client *storage.Client, gcsURI string) ([]byte, error) {
	bucket, object, err := splitURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

func splitURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}
