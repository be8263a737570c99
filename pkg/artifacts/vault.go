// Package artifacts provides content-addressed storage for compliance
// exports: DSAR response packages and audit evidence bundles. Blobs are
// keyed by their SHA-256 hash, so re-storing identical content is a no-op
// and references are self-verifying.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const refPrefix = "sha256:"

// Vault stores export blobs by content hash.
type Vault interface {
	// Put persists data and returns its content reference ("sha256:<hex>").
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by its content reference.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Exists reports whether a blob is present.
	Exists(ctx context.Context, ref string) (bool, error)
	// Delete removes a blob, e.g. after a DSAR deletion request.
	Delete(ctx context.Context, ref string) error
}

// Ref computes the content reference for data without storing it.
func Ref(data []byte) string {
	sum := sha256.Sum256(data)
	return refPrefix + hex.EncodeToString(sum[:])
}

func parseRef(ref string) (string, error) {
	raw, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return "", fmt.Errorf("invalid export reference: %s", ref)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid export reference hex: %w", err)
	}
	return raw, nil
}

// FileVault is a filesystem-backed Vault.
type FileVault struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileVault creates a vault rooted at baseDir.
func NewFileVault(baseDir string) (*FileVault, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure export dir: %w", err)
	}
	return &FileVault{baseDir: baseDir}, nil
}

func (v *FileVault) Put(_ context.Context, data []byte) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ref := Ref(data)
	path := filepath.Join(v.baseDir, ref[len(refPrefix):]+".blob")
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	// Write to temp, then rename, so readers never see a partial blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write export blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit export blob: %w", err)
	}
	return ref, nil
}

func (v *FileVault) Get(_ context.Context, ref string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	raw, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(v.baseDir, raw+".blob"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("export not found: %s", ref)
	}
	return data, err
}

func (v *FileVault) Exists(_ context.Context, ref string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	raw, err := parseRef(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(v.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (v *FileVault) Delete(_ context.Context, ref string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := parseRef(ref)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(v.baseDir, raw+".blob"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete export blob: %w", err)
	}
	return nil
}
