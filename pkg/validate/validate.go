// Package validate checks the structure of external clinical identifiers
// before they reach the ontology or the knowledge graph.
package validate

import (
	"regexp"
	"strings"

	"github.com/forge-health/forge-core/pkg/fault"
)

var (
	hpoPattern     = regexp.MustCompile(`^HP:\d{7}$`)
	genePattern    = regexp.MustCompile(`^[A-Z][A-Z0-9-]{0,19}$`)
	diseasePattern = regexp.MustCompile(`^(OMIM:\d{6}|ORPHA:\d+|MONDO:\d{7})$`)
)

// HPOCode checks an HPO identifier ("HP:" plus seven digits).
func HPOCode(code string) error {
	if !hpoPattern.MatchString(code) {
		return fault.Validationf("invalid HPO code %q", code)
	}
	return nil
}

// GeneSymbol checks an HGNC-style gene symbol: uppercase alphanumeric with
// hyphens, starting with a letter.
func GeneSymbol(symbol string) error {
	if !genePattern.MatchString(symbol) {
		return fault.Validationf("invalid gene symbol %q", symbol)
	}
	return nil
}

// DiseaseID checks a disease identifier in OMIM, Orphanet, or MONDO form.
func DiseaseID(id string) error {
	if !diseasePattern.MatchString(id) {
		return fault.Validationf("invalid disease id %q", id)
	}
	return nil
}

// NormalizeGeneSymbol uppercases and trims a user-supplied symbol, then
// validates it.
func NormalizeGeneSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if err := GeneSymbol(s); err != nil {
		return "", err
	}
	return s, nil
}

// HPOCodes validates a batch, returning the first failure.
func HPOCodes(codes []string) error {
	for _, c := range codes {
		if err := HPOCode(c); err != nil {
			return err
		}
	}
	return nil
}
