// Package council implements the Ghost Council deliberator: a roster of
// LLM personas that each analyze a proposal from three perspectives, vote,
// and feed a weighted consensus. Opinions are advisory and cached by
// proposal content.
package council

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/llm"
)

// Vote values a member synthesis may carry.
const (
	VoteApprove = "APPROVE"
	VoteReject  = "REJECT"
	VoteAbstain = "ABSTAIN"
)

// Profile selects how many members deliberate.
type Profile string

const (
	ProfileQuick         Profile = "quick"         // first member only
	ProfileStandard      Profile = "standard"      // first four
	ProfileComprehensive Profile = "comprehensive" // everyone
)

// Member is one deliberating persona. Weight is applied during consensus
// and stays within [0.9, 1.3].
type Member struct {
	Name    string
	Persona string
	Weight  float64
}

// DefaultRoster is the production council.
func DefaultRoster() []Member {
	return []Member{
		{Name: "chief-architect", Persona: "a pragmatic chief software architect focused on long-term maintainability", Weight: 1.3},
		{Name: "clinical-safety", Persona: "a clinical safety officer who weighs patient risk above all else", Weight: 1.2},
		{Name: "privacy-officer", Persona: "a data protection officer versed in GDPR, CCPA, and HIPAA", Weight: 1.1},
		{Name: "site-reliability", Persona: "a site reliability engineer concerned with operability and failure modes", Weight: 1.0},
		{Name: "product-strategist", Persona: "a product strategist focused on user value and adoption", Weight: 0.9},
		{Name: "security-analyst", Persona: "a security analyst who assumes adversarial input everywhere", Weight: 1.1},
	}
}

// Proposal is the subject of a deliberation.
type Proposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	// Severity marks serious-issue deliberations; "critical" activates the
	// rejection override.
	Severity  string `json:"severity,omitempty"`
	SkipCache bool   `json:"skip_cache,omitempty"`
}

// Perspective is one of the three analyses each member returns.
type Perspective struct {
	Assessment string   `json:"assessment"`
	KeyPoints  []string `json:"key_points"`
	Confidence float64  `json:"confidence"`
}

// Synthesis is a member's final position.
type Synthesis struct {
	Vote        string   `json:"vote"`
	Reasoning   string   `json:"reasoning"`
	Confidence  float64  `json:"confidence"`
	TopBenefits []string `json:"top_benefits"`
	TopConcerns []string `json:"top_concerns"`
}

// MemberOpinion is one member's validated deliberation. Malformed model
// output is recorded as an ABSTAIN with empty perspectives.
type MemberOpinion struct {
	Member     string      `json:"member"`
	Weight     float64     `json:"weight"`
	Optimistic Perspective `json:"optimistic"`
	Balanced   Perspective `json:"balanced"`
	Critical   Perspective `json:"critical"`
	Synthesis  Synthesis   `json:"synthesis"`
	Malformed  bool        `json:"malformed,omitempty"`
}

// Opinion is the council's aggregate output.
type Opinion struct {
	ProposalHash   string            `json:"proposal_hash"`
	Members        []MemberOpinion   `json:"members"`
	ConsensusVote  string            `json:"consensus_vote"`
	Strength       float64           `json:"strength"`
	Summaries      map[string]string `json:"perspective_summaries"`
	BenefitCount   int               `json:"benefit_count"`
	ConcernCount   int               `json:"concern_count"`
	Recommendation string            `json:"recommendation"`
	Overridden     bool              `json:"overridden,omitempty"`
	FromCache      bool              `json:"from_cache,omitempty"`
	DeliberatedAt  time.Time         `json:"deliberated_at"`
}

// Config tunes the council.
type Config struct {
	Roster       []Member
	Profile      Profile
	CacheEnabled bool
	CacheSize    int
	CacheTTL     time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Council deliberates proposals through an LLM client.
type Council struct {
	client  llm.Client
	roster  []Member
	profile Profile
	cache   *opinionCache
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a council. A zero Config uses the default roster, the
// standard profile, and no cache.
func New(client llm.Client, cfg Config) *Council {
	if len(cfg.Roster) == 0 {
		cfg.Roster = DefaultRoster()
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Wall
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Council{
		client:  client,
		roster:  cfg.Roster,
		profile: cfg.Profile,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if cfg.CacheEnabled {
		c.cache = newOpinionCache(cfg.CacheSize, cfg.CacheTTL, cfg.Clock)
	}
	return c
}

// CacheHits reports how many deliberations were served from cache.
func (c *Council) CacheHits() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Hits()
}

// members returns the roster slice the active profile selects.
func (c *Council) members() []Member {
	switch c.profile {
	case ProfileQuick:
		return c.roster[:1]
	case ProfileComprehensive:
		return c.roster
	default:
		if len(c.roster) > 4 {
			return c.roster[:4]
		}
		return c.roster
	}
}

// Deliberate produces a weighted advisory opinion on the proposal.
// Members deliberate sequentially in roster order so logs are
// deterministic.
func (c *Council) Deliberate(ctx context.Context, p Proposal) (*Opinion, error) {
	hash := ProposalHash(p)
	if c.cache != nil && !p.SkipCache {
		if cached, ok := c.cache.Get(hash); ok {
			out := *cached
			out.FromCache = true
			return &out, nil
		}
	}

	user := buildUserPrompt(p)
	opinions := make([]MemberOpinion, 0, len(c.members()))
	for _, m := range c.members() {
		reply, err := c.client.Chat(ctx, memberSystemPrompt(m), user)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("council member failed", "member", m.Name, "error", err)
			opinions = append(opinions, abstainOpinion(m))
			continue
		}
		mo, err := parseMemberOpinion(m, reply)
		if err != nil {
			c.logger.Warn("council member returned malformed deliberation", "member", m.Name, "error", err)
			mo = abstainOpinion(m)
		}
		opinions = append(opinions, mo)
	}

	opinion := c.consense(p, hash, opinions)
	if c.cache != nil {
		// A forced re-deliberation still refreshes the cached opinion.
		c.cache.Put(hash, opinion)
	}
	return opinion, nil
}

func abstainOpinion(m Member) MemberOpinion {
	return MemberOpinion{
		Member:    m.Name,
		Weight:    m.Weight,
		Malformed: true,
		Synthesis: Synthesis{Vote: VoteAbstain, Reasoning: "deliberation unavailable", Confidence: 0},
	}
}

// consense folds member opinions into the aggregate. Each vote
// contributes weight*confidence to its bucket; the winner is the argmax
// and strength is the winning share of all contributions.
func (c *Council) consense(p Proposal, hash string, members []MemberOpinion) *Opinion {
	buckets := map[string]float64{}
	total := 0.0
	rejections, voters := 0, 0
	for _, mo := range members {
		contribution := mo.Weight * mo.Synthesis.Confidence
		buckets[mo.Synthesis.Vote] += contribution
		total += contribution
		if !mo.Malformed {
			voters++
			if mo.Synthesis.Vote == VoteReject {
				rejections++
			}
		}
	}

	vote := VoteAbstain
	best := 0.0
	for _, v := range []string{VoteApprove, VoteReject, VoteAbstain} {
		if buckets[v] > best {
			best = buckets[v]
			vote = v
		}
	}
	strength := 0.0
	if total > 0 {
		strength = best / total
	}

	benefits, concerns := 0, 0
	for _, mo := range members {
		benefits += len(mo.Synthesis.TopBenefits)
		concerns += len(mo.Synthesis.TopConcerns)
	}

	opinion := &Opinion{
		ProposalHash:  hash,
		Members:       members,
		ConsensusVote: vote,
		Strength:      strength,
		Summaries:     summarize(members),
		BenefitCount:  benefits,
		ConcernCount:  concerns,
		DeliberatedAt: c.clock.Now(),
	}

	// A critical serious issue must be acted on: a non-unanimous REJECT is
	// overridden to APPROVE and the recommendation says so.
	unanimousReject := voters > 0 && rejections == voters
	if strings.EqualFold(p.Severity, "critical") && vote == VoteReject && !unanimousReject {
		opinion.ConsensusVote = VoteApprove
		opinion.Overridden = true
	}

	opinion.Recommendation = recommend(opinion)
	return opinion
}

// summarize concatenates up to five members' short assessments per
// perspective.
func summarize(members []MemberOpinion) map[string]string {
	pick := func(get func(MemberOpinion) Perspective) string {
		var parts []string
		for _, mo := range members {
			if len(parts) == 5 {
				break
			}
			if a := strings.TrimSpace(get(mo).Assessment); a != "" {
				parts = append(parts, fmt.Sprintf("[%s] %s", mo.Member, a))
			}
		}
		return strings.Join(parts, " ")
	}
	return map[string]string{
		"optimistic": pick(func(m MemberOpinion) Perspective { return m.Optimistic }),
		"balanced":   pick(func(m MemberOpinion) Perspective { return m.Balanced }),
		"critical":   pick(func(m MemberOpinion) Perspective { return m.Critical }),
	}
}

// recommend maps (vote, strength) to one of five wording bands with the
// aggregate counts injected.
func recommend(o *Opinion) string {
	counts := fmt.Sprintf("(%d members, %d benefits, %d concerns identified)",
		len(o.Members), o.BenefitCount, o.ConcernCount)
	if o.Overridden {
		return fmt.Sprintf("APPROVE - critical severity overrides a non-unanimous rejection; the issue must be addressed despite the council's reservations %s", counts)
	}
	switch {
	case o.ConsensusVote == VoteApprove && o.Strength >= 0.8:
		return fmt.Sprintf("STRONGLY APPROVE - the council is firmly in favor %s", counts)
	case o.ConsensusVote == VoteApprove:
		return fmt.Sprintf("APPROVE WITH CAUTION - the council leans in favor but is divided %s", counts)
	case o.ConsensusVote == VoteReject && o.Strength >= 0.8:
		return fmt.Sprintf("STRONGLY REJECT - the council is firmly opposed %s", counts)
	case o.ConsensusVote == VoteReject:
		return fmt.Sprintf("LEAN REJECT - the council leans against but is divided %s", counts)
	default:
		return fmt.Sprintf("NO CONSENSUS - the council could not reach a position %s", counts)
	}
}

// SortedVotes lists the vote buckets largest-first, for logs.
func SortedVotes(members []MemberOpinion) []string {
	buckets := map[string]float64{}
	for _, mo := range members {
		buckets[mo.Synthesis.Vote] += mo.Weight * mo.Synthesis.Confidence
	}
	votes := make([]string, 0, len(buckets))
	for v := range buckets {
		votes = append(votes, v)
	}
	sort.Slice(votes, func(i, j int) bool {
		if buckets[votes[i]] != buckets[votes[j]] {
			return buckets[votes[i]] > buckets[votes[j]]
		}
		return votes[i] < votes[j]
	})
	return votes
}
