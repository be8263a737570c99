package dsar

import (
	"context"
	"encoding/json"
	"time"

	"github.com/forge-health/forge-core/pkg/artifacts"
	"github.com/forge-health/forge-core/pkg/fault"
)

// ExportPackage is the disclosure bundle handed to the data subject when an
// access or portability request completes.
type ExportPackage struct {
	RequestID    string          `json:"request_id"`
	SubjectName  string          `json:"subject_name"`
	SubjectEmail string          `json:"subject_email"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Records      json.RawMessage `json:"records"`
	Ref          string          `json:"ref,omitempty"`
}

// Export builds the disclosure package for a completed request and stores it
// in the vault. The returned reference is content-addressed.
func (s *Service) Export(ctx context.Context, id string, vault artifacts.Vault, records json.RawMessage) (*ExportPackage, error) {
	r, err := s.store.GetDSAR(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusCompleted {
		return nil, fault.Conflictf("cannot export dsar in status %s", r.Status)
	}
	if records == nil {
		records = json.RawMessage("[]")
	}

	pkg := &ExportPackage{
		RequestID:    r.ID,
		SubjectName:  r.SubjectName,
		SubjectEmail: r.SubjectEmail,
		GeneratedAt:  s.clock.Now(),
		Records:      records,
	}
	raw, err := json.Marshal(pkg)
	if err != nil {
		return nil, err
	}
	ref, err := vault.Put(ctx, raw)
	if err != nil {
		return nil, err
	}
	pkg.Ref = ref
	s.audit(r.ID, "dsar_exported", "system", true)
	return pkg, nil
}
