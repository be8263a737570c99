package policy

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/forge-health/forge-core/pkg/clock"
)

const (
	businessHoursStart = 9
	businessHoursEnd   = 17
)

// Engine evaluates access requests against the role table and attribute
// policies. Reads take a consistent snapshot; ReplaceRoles/ReplacePolicies
// support hot reload.
type Engine struct {
	mu       sync.RWMutex
	model    Model
	roles    map[string]*Role
	policies []*AttributePolicy
	programs map[string]cel.Program // compiled Condition per policy id
	clock    clock.Clock
}

// NewEngine creates an engine with the given model.
func NewEngine(model Model, c clock.Clock) *Engine {
	if c == nil {
		c = clock.Wall
	}
	return &Engine{
		model:    model,
		roles:    make(map[string]*Role),
		programs: make(map[string]cel.Program),
		clock:    c,
	}
}

// ReplaceRoles swaps the role table. Permissions outside the global enum
// are rejected; privileged roles are forced to MFA-required.
func (e *Engine) ReplaceRoles(roles []*Role) error {
	table := make(map[string]*Role, len(roles))
	for _, r := range roles {
		for _, p := range r.Permissions {
			if _, ok := KnownPermissions[p]; !ok {
				return fmt.Errorf("role %s: unknown permission %q", r.ID, p)
			}
		}
		if r.Privileged {
			r.MFARequired = true
		}
		table[r.ID] = r
	}
	e.mu.Lock()
	e.roles = table
	e.mu.Unlock()
	return nil
}

// ReplacePolicies swaps the attribute policy list, compiling any CEL
// conditions up front so evaluation stays pure.
func (e *Engine) ReplacePolicies(policies []*AttributePolicy) error {
	programs := make(map[string]cel.Program)
	for _, p := range policies {
		if p.Condition == "" {
			continue
		}
		env, err := cel.NewEnv(
			cel.Variable("subject", cel.MapType(cel.StringType, cel.StringType)),
			cel.Variable("resource", cel.MapType(cel.StringType, cel.StringType)),
			cel.Variable("env", cel.MapType(cel.StringType, cel.StringType)),
		)
		if err != nil {
			return err
		}
		ast, issues := env.Compile(p.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("policy %s: bad condition: %w", p.ID, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
		programs[p.ID] = prg
	}
	e.mu.Lock()
	e.policies = policies
	e.programs = programs
	e.mu.Unlock()
	return nil
}

// CheckAccess runs the decision procedure: RBAC first, then attribute
// policies when the model allows, deny-by-default otherwise. Denials are
// always audit-required.
func (e *Engine) CheckAccess(req Request) AccessDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(req.Roles) == 0 {
		return AccessDecision{
			Allowed:       false,
			Reason:        "subject has no roles",
			AuditRequired: true,
		}
	}

	if e.model == ModelRBAC || e.model == ModelHybrid {
		if d, ok := e.checkRoles(req); ok {
			return d
		}
	}

	if e.model == ModelABAC || e.model == ModelHybrid {
		if d, ok := e.checkPolicies(req); ok {
			return d
		}
	}

	return AccessDecision{
		Allowed:       false,
		Reason:        "no role or policy grants required access",
		AuditRequired: true,
	}
}

func (e *Engine) checkRoles(req Request) (AccessDecision, bool) {
	_, sensitive := sensitiveClassifications[req.Classification]
	for _, roleID := range req.Roles {
		role, ok := e.roles[roleID]
		if !ok {
			continue
		}
		if !containsPerm(role.Permissions, req.Permission) {
			continue
		}
		if !containsStr(role.ResourceTypes, req.ResourceType) {
			continue
		}
		if req.Classification != "" && !containsClass(role.DataClassifications, req.Classification) {
			continue
		}
		return AccessDecision{
			Allowed:       true,
			Reason:        fmt.Sprintf("role %s grants %s on %s", role.ID, req.Permission, req.ResourceType),
			RoleID:        role.ID,
			RequiresMFA:   role.MFARequired,
			AuditRequired: role.Privileged || sensitive,
		}, true
	}
	return AccessDecision{}, false
}

// checkPolicies evaluates attribute policies. A matching deny overrides any
// allow; otherwise the first matching allow grants.
func (e *Engine) checkPolicies(req Request) (AccessDecision, bool) {
	_, sensitive := sensitiveClassifications[req.Classification]
	var allow *AttributePolicy
	for _, p := range e.policies {
		if len(p.Permissions) > 0 && !containsPerm(p.Permissions, req.Permission) {
			continue
		}
		if !e.policyMatches(p, req) {
			continue
		}
		if p.Effect == EffectDeny {
			return AccessDecision{
				Allowed:       false,
				Reason:        fmt.Sprintf("policy %s denies %s", p.ID, req.Permission),
				PolicyID:      p.ID,
				AuditRequired: true,
			}, true
		}
		if allow == nil {
			allow = p
		}
	}
	if allow != nil {
		return AccessDecision{
			Allowed:       true,
			Reason:        fmt.Sprintf("policy %s grants %s", allow.ID, req.Permission),
			PolicyID:      allow.ID,
			AuditRequired: sensitive,
		}, true
	}
	return AccessDecision{}, false
}

func (e *Engine) policyMatches(p *AttributePolicy, req Request) bool {
	if !attrsMatch(p.SubjectAttrs, req.SubjectAttrs, nil) {
		return false
	}
	if !attrsMatch(p.ResourceAttrs, req.ResourceAttrs, nil) {
		return false
	}
	if !attrsMatch(p.EnvAttrs, req.EnvAttrs, e.envSpecial) {
		return false
	}
	if prg, ok := e.programs[p.ID]; ok {
		out, _, err := prg.Eval(map[string]any{
			"subject":  orEmpty(req.SubjectAttrs),
			"resource": orEmpty(req.ResourceAttrs),
			"env":      orEmpty(req.EnvAttrs),
		})
		if err != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}
	return true
}

// envSpecial handles environment keys with derived semantics.
// time_of_day = "business_hours" matches 09:00–17:00 local hour; the hour is
// taken from the supplied env attrs when present, else from the clock.
func (e *Engine) envSpecial(key, want string, supplied map[string]string) (bool, bool) {
	if key != "time_of_day" || want != "business_hours" {
		return false, false
	}
	hour := e.clock.Now().Hour()
	if h, ok := supplied["hour"]; ok {
		if parsed, err := strconv.Atoi(h); err == nil {
			hour = parsed
		}
	}
	return hour >= businessHoursStart && hour <= businessHoursEnd, true
}

// attrsMatch requires every key in want to compare equal in got, with an
// optional special-case hook.
func attrsMatch(want, got map[string]string, special func(key, want string, got map[string]string) (bool, bool)) bool {
	for k, v := range want {
		if special != nil {
			if matched, handled := special(k, v, got); handled {
				if !matched {
					return false
				}
				continue
			}
		}
		if got[k] != v {
			return false
		}
	}
	return true
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func containsPerm(xs []Permission, want Permission) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

func containsStr(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

func containsClass(xs []DataClassification, want DataClassification) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
