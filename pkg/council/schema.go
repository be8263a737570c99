package council

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// memberSchema validates a member's tri-perspective reply before it is
// admitted to consensus.
const memberSchema = `{
  "type": "object",
  "required": ["optimistic", "balanced", "critical", "synthesis"],
  "properties": {
    "optimistic": {"$ref": "#/$defs/perspective"},
    "balanced": {"$ref": "#/$defs/perspective"},
    "critical": {"$ref": "#/$defs/perspective"},
    "synthesis": {
      "type": "object",
      "required": ["vote", "reasoning", "confidence"],
      "properties": {
        "vote": {"enum": ["APPROVE", "REJECT", "ABSTAIN"]},
        "reasoning": {"type": "string"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "top_benefits": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
        "top_concerns": {"type": "array", "items": {"type": "string"}, "maxItems": 3}
      }
    }
  },
  "$defs": {
    "perspective": {
      "type": "object",
      "required": ["assessment", "confidence"],
      "properties": {
        "assessment": {"type": "string"},
        "key_points": {"type": "array", "items": {"type": "string"}, "maxItems": 5},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var compiledMemberSchema = jsonschema.MustCompileString("member.json", memberSchema)

// parseMemberOpinion validates and decodes a member reply. Any schema or
// syntax failure is returned so the caller can record an ABSTAIN.
func parseMemberOpinion(m Member, reply string) (MemberOpinion, error) {
	var raw any
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return MemberOpinion{}, fmt.Errorf("parse deliberation: %w", err)
	}
	if err := compiledMemberSchema.Validate(raw); err != nil {
		return MemberOpinion{}, fmt.Errorf("validate deliberation: %w", err)
	}
	var mo MemberOpinion
	if err := json.Unmarshal([]byte(reply), &mo); err != nil {
		return MemberOpinion{}, fmt.Errorf("decode deliberation: %w", err)
	}
	mo.Member = m.Name
	mo.Weight = m.Weight
	return mo, nil
}
