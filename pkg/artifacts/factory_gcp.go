//go:build gcp

package artifacts

import (
	"context"
	"fmt"
	"os"
)

func newGCSVaultFromEnv(ctx context.Context) (Vault, error) {
	bucket := os.Getenv("EXPORT_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("EXPORT_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSVault(ctx, GCSConfig{
		Bucket: bucket,
		Prefix: os.Getenv("EXPORT_GCS_PREFIX"),
	})
}
