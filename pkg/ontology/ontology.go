// Package ontology serves the Human Phenotype Ontology: term lookup,
// ancestor and descendant traversal, semantic similarity, and normalized
// text search. Terms form a DAG rooted at the phenotypic-abnormality
// branch; a term may have several parents.
package ontology

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/forge-health/forge-core/pkg/fault"
)

// Term is one ontology node.
type Term struct {
	ID         string
	Name       string
	Definition string
	Synonyms   []string
	Parents    []string
	Children   []string
	Obsolete   bool
}

// Service is the in-memory ontology index.
type Service struct {
	terms   map[string]*Term
	byLabel map[string]string // normalized name or synonym -> id

	mu            sync.Mutex
	ancestorCache *boundedCache
	simCache      *boundedCache
}

// normalizer lowers case and strips diacritics so "Myoclonic Séizure"
// matches "myoclonic seizure".
var normalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

func normalizeText(s string) string {
	out, _, err := transform.String(normalizer, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// New builds a service from parsed terms, wiring child links from parents.
func New(terms []*Term) *Service {
	s := &Service{
		terms:         make(map[string]*Term, len(terms)),
		byLabel:       make(map[string]string, len(terms)*2),
		ancestorCache: newBoundedCache(10000),
		simCache:      newBoundedCache(10000),
	}
	for _, t := range terms {
		s.terms[t.ID] = t
	}
	for _, t := range terms {
		if t.Obsolete {
			continue
		}
		if _, taken := s.byLabel[normalizeText(t.Name)]; !taken {
			s.byLabel[normalizeText(t.Name)] = t.ID
		}
		for _, syn := range t.Synonyms {
			key := normalizeText(syn)
			if _, taken := s.byLabel[key]; !taken {
				s.byLabel[key] = t.ID
			}
		}
		for _, pid := range t.Parents {
			if parent, ok := s.terms[pid]; ok {
				parent.Children = append(parent.Children, t.ID)
			}
		}
	}
	return s
}

// ParseOBO reads an OBO-format ontology file. Only the stanza fields the
// service uses are retained.
func ParseOBO(r io.Reader) (*Service, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var terms []*Term
	var cur *Term
	inTerm := false

	flush := func() {
		if cur != nil && cur.ID != "" {
			terms = append(terms, cur)
		}
		cur = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "[Term]":
			flush()
			cur = &Term{}
			inTerm = true
		case strings.HasPrefix(line, "["):
			flush()
			inTerm = false
		case !inTerm || cur == nil || line == "":
			continue
		case strings.HasPrefix(line, "id: "):
			cur.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "name: "):
			cur.Name = strings.TrimPrefix(line, "name: ")
		case strings.HasPrefix(line, "def: "):
			cur.Definition = parseQuoted(strings.TrimPrefix(line, "def: "))
		case strings.HasPrefix(line, "synonym: "):
			if syn := parseQuoted(strings.TrimPrefix(line, "synonym: ")); syn != "" {
				cur.Synonyms = append(cur.Synonyms, syn)
			}
		case strings.HasPrefix(line, "is_a: "):
			parent := strings.TrimPrefix(line, "is_a: ")
			if i := strings.Index(parent, " "); i > 0 {
				parent = parent[:i]
			}
			cur.Parents = append(cur.Parents, parent)
		case line == "is_obsolete: true":
			cur.Obsolete = true
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse ontology: %w", err)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("parse ontology: no terms found")
	}
	return New(terms), nil
}

func parseQuoted(s string) string {
	start := strings.Index(s, `"`)
	if start < 0 {
		return s
	}
	end := strings.Index(s[start+1:], `"`)
	if end < 0 {
		return s[start+1:]
	}
	return s[start+1 : start+1+end]
}

// Len reports the number of loaded terms.
func (s *Service) Len() int { return len(s.terms) }

// Lookup returns the term for an HPO id.
func (s *Service) Lookup(id string) (*Term, error) {
	t, ok := s.terms[id]
	if !ok {
		return nil, fault.NotFoundf("ontology term %s", id)
	}
	return t, nil
}

// Resolve maps free text to a term: exact normalized name or synonym first,
// then best text-search hit.
func (s *Service) Resolve(text string) (*Term, error) {
	if id, ok := s.byLabel[normalizeText(text)]; ok {
		return s.terms[id], nil
	}
	results := s.Search(text, 1)
	if len(results) == 0 {
		return nil, fault.NotFoundf("no ontology match for %q", text)
	}
	return results[0].Term, nil
}

// Ancestors returns all transitive parents up to maxDepth levels
// (maxDepth <= 0 means unbounded). The result excludes the term itself.
func (s *Service) Ancestors(id string, maxDepth int) ([]string, error) {
	if _, ok := s.terms[id]; !ok {
		return nil, fault.NotFoundf("ontology term %s", id)
	}
	cacheKey := fmt.Sprintf("%s/%d", id, maxDepth)
	s.mu.Lock()
	if cached, ok := s.ancestorCache.get(cacheKey); ok {
		s.mu.Unlock()
		return cached.([]string), nil
	}
	s.mu.Unlock()

	seen := map[string]bool{}
	var out []string
	frontier := []string{id}
	for depth := 0; len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth); depth++ {
		var next []string
		for _, cur := range frontier {
			t, ok := s.terms[cur]
			if !ok {
				continue
			}
			for _, pid := range t.Parents {
				if !seen[pid] {
					seen[pid] = true
					out = append(out, pid)
					next = append(next, pid)
				}
			}
		}
		frontier = next
	}

	s.mu.Lock()
	s.ancestorCache.put(cacheKey, out)
	s.mu.Unlock()
	return out, nil
}

// Descendants returns all transitive children up to maxDepth levels.
func (s *Service) Descendants(id string, maxDepth int) ([]string, error) {
	if _, ok := s.terms[id]; !ok {
		return nil, fault.NotFoundf("ontology term %s", id)
	}
	seen := map[string]bool{}
	var out []string
	frontier := []string{id}
	for depth := 0; len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth); depth++ {
		var next []string
		for _, cur := range frontier {
			t, ok := s.terms[cur]
			if !ok {
				continue
			}
			for _, cid := range t.Children {
				if !seen[cid] {
					seen[cid] = true
					out = append(out, cid)
					next = append(next, cid)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// Similarity computes a Jaccard-style score over the two terms' ancestor
// closures (terms included). 1.0 for identical terms, 0.0 for disjoint
// branches.
func (s *Service) Similarity(a, b string) (float64, error) {
	if a == b {
		if _, err := s.Lookup(a); err != nil {
			return 0, err
		}
		return 1.0, nil
	}
	cacheKey := a + "|" + b
	if b < a {
		cacheKey = b + "|" + a
	}
	s.mu.Lock()
	if cached, ok := s.simCache.get(cacheKey); ok {
		s.mu.Unlock()
		return cached.(float64), nil
	}
	s.mu.Unlock()

	ancA, err := s.Ancestors(a, 0)
	if err != nil {
		return 0, err
	}
	ancB, err := s.Ancestors(b, 0)
	if err != nil {
		return 0, err
	}
	setA := map[string]bool{a: true}
	for _, id := range ancA {
		setA[id] = true
	}
	union := len(setA)
	common := 0
	for _, id := range append(ancB, b) {
		if setA[id] {
			common++
		} else {
			union++
		}
	}
	sim := 0.0
	if union > 0 {
		sim = float64(common) / float64(union)
	}

	s.mu.Lock()
	s.simCache.put(cacheKey, sim)
	s.mu.Unlock()
	return sim, nil
}

// PhenotypicAbnormalityRoot anchors the organ-system branches.
const PhenotypicAbnormalityRoot = "HP:0000118"

// TopLevelBranch returns the ancestor that sits directly under the
// phenotypic-abnormality root, used to categorise phenotypes by organ
// system. A term outside that subtree maps to itself.
func (s *Service) TopLevelBranch(id string) (string, error) {
	t, ok := s.terms[id]
	if !ok {
		return "", fault.NotFoundf("ontology term %s", id)
	}
	for _, pid := range t.Parents {
		if pid == PhenotypicAbnormalityRoot {
			return t.ID, nil
		}
	}
	anc, err := s.Ancestors(id, 0)
	if err != nil {
		return "", err
	}
	for _, aid := range anc {
		a, ok := s.terms[aid]
		if !ok {
			continue
		}
		for _, pid := range a.Parents {
			if pid == PhenotypicAbnormalityRoot {
				return a.ID, nil
			}
		}
	}
	return t.ID, nil
}

// SearchResult is one scored search hit. Scores are normalized so the best
// hit is exactly 1.0.
type SearchResult struct {
	Term  *Term
	Score float64
}

// Search ranks terms against a free-text query. Exact normalized matches
// and prefix matches are boosted; token overlap carries the base score.
func (s *Service) Search(query string, limit int) []SearchResult {
	q := normalizeText(query)
	if q == "" {
		return nil
	}
	qTokens := strings.Fields(q)

	var results []SearchResult
	for _, t := range s.terms {
		if t.Obsolete {
			continue
		}
		score := scoreLabel(q, qTokens, normalizeText(t.Name))
		for _, syn := range t.Synonyms {
			if synScore := scoreLabel(q, qTokens, normalizeText(syn)) * 0.9; synScore > score {
				score = synScore
			}
		}
		if score > 0 {
			results = append(results, SearchResult{Term: t, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Term.ID < results[j].Term.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	// Normalize to the best hit.
	if len(results) > 0 && results[0].Score > 0 {
		max := results[0].Score
		for i := range results {
			results[i].Score /= max
		}
	}
	return results
}

func scoreLabel(q string, qTokens []string, label string) float64 {
	if label == q {
		return 2.0
	}
	score := 0.0
	if strings.HasPrefix(label, q) {
		score += 0.5
	}
	labelTokens := strings.Fields(label)
	matched := 0
	for _, qt := range qTokens {
		for _, lt := range labelTokens {
			if qt == lt {
				matched++
				break
			}
		}
	}
	if matched == 0 && score == 0 {
		return 0
	}
	if len(qTokens) > 0 {
		score += float64(matched) / float64(len(qTokens))
	}
	return score
}
