package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BlobStore uploads product image bytes to a GCS bucket and resolves a
// stable public URL for each object.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// NewBlobStore creates a BlobStore backed by the given bucket.
func NewBlobStore(ctx context.Context, bucket string) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a blob store")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &BlobStore{client: client, bucket: bucket}, nil
}

// Upload writes data to the named object and returns its public URL.
// A precondition failure (object already exists) is not an error: re-running
// an idempotent ingestion may upload the same object twice, and the existing
// object's URL is just as valid.
func (b *BlobStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	writer := b.client.Bucket(b.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, reusing it.", "object", objectName)
			return b.publicURL(objectName), nil
		}
		return "", fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}

	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, reusing it.", "object", objectName)
			return b.publicURL(objectName), nil
		}
		return "", fmt.Errorf("failed to finalize GCS write for %s: %w", objectName, err)
	}

	return b.publicURL(objectName), nil
}

// Close releases the underlying storage client.
func (b *BlobStore) Close() error {
	return b.client.Close()
}

func (b *BlobStore) publicURL(objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, objectName)
}
