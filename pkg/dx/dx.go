// Package dx holds the shared diagnostic domain types: patient profiles,
// evidence, hypotheses, follow-up questions, and the diagnosis session.
// The engine, scorer, agents, and controller all speak these types.
package dx

import "time"

// Pathogenicity classifications for genetic variants.
const (
	PathogenicityPathogenic       = "pathogenic"
	PathogenicityLikelyPathogenic = "likely_pathogenic"
	PathogenicityVUS              = "vus"
	PathogenicityLikelyBenign     = "likely_benign"
	PathogenicityBenign           = "benign"
)

// Variant is one reported genetic variant.
type Variant struct {
	Gene          string `json:"gene"`
	Notation      string `json:"notation,omitempty"`
	Pathogenicity string `json:"pathogenicity"`
	Zygosity      string `json:"zygosity,omitempty"`
}

// PatientProfile is the normalized intake: phenotypes as HPO codes,
// negations split out, history as free text.
type PatientProfile struct {
	ID                string            `json:"id"`
	Phenotypes        []string          `json:"phenotypes"`
	NegatedPhenotypes []string          `json:"negated_phenotypes,omitempty"`
	Variants          []Variant         `json:"variants,omitempty"`
	History           []string          `json:"history,omitempty"`
	NegatedHistory    []string          `json:"negated_history,omitempty"`
	FamilyHistory     []string          `json:"family_history,omitempty"`
	Demographics      map[string]string `json:"demographics,omitempty"`
}

// EvidenceType classifies evidence items.
type EvidenceType string

const (
	EvidencePhenotype EvidenceType = "phenotype"
	EvidenceGenetic   EvidenceType = "genetic"
	EvidenceHistory   EvidenceType = "history"
	EvidenceFamily    EvidenceType = "family"
	EvidenceWearable  EvidenceType = "wearable"
)

// EvidenceItem is one appended observation. A negated item flips its
// polarity from supporting to refuting.
type EvidenceItem struct {
	ID         string       `json:"id"`
	Type       EvidenceType `json:"type"`
	Value      string       `json:"value"`
	Code       string       `json:"code,omitempty"`
	Negated    bool         `json:"negated"`
	Severity   string       `json:"severity,omitempty"`
	Confidence float64      `json:"confidence"`
	Confirmed  bool         `json:"confirmed"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Hypothesis is one candidate diagnosis, re-scored on every pass.
type Hypothesis struct {
	ID          string  `json:"id"`
	DiseaseID   string  `json:"disease_id"`
	DiseaseName string  `json:"disease_name"`
	Prior       float64 `json:"prior"`
	Posterior   float64 `json:"posterior"`

	PhenotypeScore float64 `json:"phenotype_score"`
	GeneticScore   float64 `json:"genetic_score"`
	HistoryScore   float64 `json:"history_score"`
	WearableScore  float64 `json:"wearable_score"`
	CombinedScore  float64 `json:"combined_score"`

	MatchedPhenotypes  []string `json:"matched_phenotypes,omitempty"`
	ExpectedPhenotypes []string `json:"expected_phenotypes,omitempty"`
	MissingPhenotypes  []string `json:"missing_phenotypes,omitempty"`
	AssociatedGenes    []string `json:"associated_genes,omitempty"`

	SupportingEvidence []string `json:"supporting_evidence,omitempty"`
	RefutingEvidence   []string `json:"refuting_evidence,omitempty"`
	NeutralEvidence    []string `json:"neutral_evidence,omitempty"`

	Rank       int    `json:"rank"`
	Confidence string `json:"confidence,omitempty"` // high / moderate / low / uncertain
	Reasoning  string `json:"reasoning,omitempty"`
}

// QuestionType enumerates follow-up question forms.
type QuestionType string

const (
	QuestionBinary         QuestionType = "binary"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFreeText       QuestionType = "free_text"
	QuestionNumeric        QuestionType = "numeric"
)

// FollowUpQuestion is one generated question awaiting an answer.
type FollowUpQuestion struct {
	ID                 string       `json:"id"`
	Text               string       `json:"text"`
	Type               QuestionType `json:"type"`
	TargetPhenotype    string       `json:"target_phenotype,omitempty"`
	Options            []string     `json:"options,omitempty"`
	AffectedHypotheses []string     `json:"affected_hypotheses,omitempty"`
	InformationGain    float64      `json:"information_gain"`
	Priority           float64      `json:"priority"`
	Answer             string       `json:"answer,omitempty"`
	AnsweredAt         *time.Time   `json:"answered_at,omitempty"`
}

// SessionState is the diagnosis session lifecycle state.
type SessionState string

const (
	StateIntake      SessionState = "intake"
	StateAnalyzing   SessionState = "analyzing"
	StateQuestioning SessionState = "questioning"
	StateRefining    SessionState = "refining"
	StateComplete    SessionState = "complete"
	StatePaused      SessionState = "paused"
	StateExpired     SessionState = "expired"
)

// Terminal reports whether the session can no longer advance.
func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateExpired
}

// Session is one diagnosis session. All mutation happens under the
// controller's per-session lock.
type Session struct {
	ID                string              `json:"id"`
	Patient           PatientProfile      `json:"patient"`
	Evidence          []EvidenceItem      `json:"evidence,omitempty"`
	Hypotheses        []*Hypothesis       `json:"hypotheses,omitempty"`
	TopHypotheses     []*Hypothesis       `json:"top_hypotheses,omitempty"`
	PendingQuestions  []*FollowUpQuestion `json:"pending_questions,omitempty"`
	AnsweredQuestions []*FollowUpQuestion `json:"answered_questions,omitempty"`

	State               SessionState `json:"state"`
	Iterations          int          `json:"iterations"`
	MaxIterations       int          `json:"max_iterations"`
	ConfidenceThreshold float64      `json:"confidence_threshold"`

	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Result is the finalized diagnosis package.
type Result struct {
	SessionID        string        `json:"session_id"`
	Primary          *Hypothesis   `json:"primary_diagnosis,omitempty"`
	Differential     []*Hypothesis `json:"differential"`
	KeyFindings      []string      `json:"key_findings,omitempty"`
	RecommendedTests []string      `json:"recommended_tests,omitempty"`
	EvidenceStrength string        `json:"evidence_strength"`
	Iterations       int           `json:"iterations"`
	State            SessionState  `json:"state"`
}
