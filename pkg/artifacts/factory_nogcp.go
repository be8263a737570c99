//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCSVaultFromEnv(context.Context) (Vault, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
