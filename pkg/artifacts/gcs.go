//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSVault stores export blobs in a Google Cloud Storage bucket.
type GCSVault struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig configures a GCSVault.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSVault creates a GCS-backed vault using application default
// credentials.
func NewGCSVault(ctx context.Context, cfg GCSConfig) (*GCSVault, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSVault{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (v *GCSVault) object(raw string) *storage.ObjectHandle {
	return v.client.Bucket(v.bucket).Object(v.prefix + raw + ".blob")
}

func (v *GCSVault) Put(ctx context.Context, data []byte) (string, error) {
	ref := Ref(data)
	obj := v.object(ref[len(refPrefix):])

	if _, err := obj.Attrs(ctx); err == nil {
		return ref, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close: %w", err)
	}
	return ref, nil
}

func (v *GCSVault) Get(ctx context.Context, ref string) ([]byte, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	r, err := v.object(raw).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("export not found: %s", ref)
		}
		return nil, fmt.Errorf("gcs read %s: %w", ref, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (v *GCSVault) Exists(ctx context.Context, ref string) (bool, error) {
	raw, err := parseRef(ref)
	if err != nil {
		return false, err
	}
	_, err = v.object(raw).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

func (v *GCSVault) Delete(ctx context.Context, ref string) error {
	raw, err := parseRef(ref)
	if err != nil {
		return err
	}
	err = v.object(raw).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", ref, err)
	}
	return nil
}
