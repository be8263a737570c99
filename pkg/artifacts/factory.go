package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend selects the vault implementation.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// NewVaultFromEnv creates an export vault from environment variables.
//
//   - EXPORT_STORAGE_TYPE: "fs" (default), "s3", or "gcs"
//   - DATA_DIR: base directory for the filesystem vault (default "data")
//   - EXPORT_S3_BUCKET / EXPORT_S3_REGION (or AWS_REGION) /
//     EXPORT_S3_ENDPOINT / EXPORT_S3_PREFIX
//   - EXPORT_GCS_BUCKET / EXPORT_GCS_PREFIX (requires the gcp build tag)
func NewVaultFromEnv(ctx context.Context) (Vault, error) {
	backend := Backend(os.Getenv("EXPORT_STORAGE_TYPE"))
	if backend == "" {
		backend = BackendFS
	}
	switch backend {
	case BackendFS:
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileVault(filepath.Join(dataDir, "exports"))
	case BackendS3:
		bucket := os.Getenv("EXPORT_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("EXPORT_S3_BUCKET is required for S3 storage")
		}
		region := os.Getenv("EXPORT_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Vault(ctx, S3Config{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("EXPORT_S3_ENDPOINT"),
			Prefix:   os.Getenv("EXPORT_S3_PREFIX"),
		})
	case BackendGCS:
		return newGCSVaultFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported export storage type: %s", backend)
	}
}
