// Package policy implements the access policy engine: an RBAC role table
// combined with ABAC attribute policies, producing an AccessDecision per
// request.
package policy

import "time"

// Permission names are a closed enum; role permission sets must be subsets.
type Permission string

const (
	PermReadPatientData   Permission = "read_patient_data"
	PermWritePatientData  Permission = "write_patient_data"
	PermDeletePatientData Permission = "delete_patient_data"
	PermReadAuditLog      Permission = "read_audit_log"
	PermManageUsers       Permission = "manage_users"
	PermManageBreaches    Permission = "manage_breaches"
	PermProcessDSAR       Permission = "process_dsar"
	PermManageConsent     Permission = "manage_consent"
	PermManageSystem      Permission = "manage_system_config"
	PermRunDiagnosis      Permission = "run_diagnosis"
	PermReviewAIDecision  Permission = "review_ai_decision"
)

// KnownPermissions is the global permission enum.
var KnownPermissions = map[Permission]struct{}{
	PermReadPatientData: {}, PermWritePatientData: {}, PermDeletePatientData: {},
	PermReadAuditLog: {}, PermManageUsers: {}, PermManageBreaches: {},
	PermProcessDSAR: {}, PermManageConsent: {}, PermManageSystem: {},
	PermRunDiagnosis: {}, PermReviewAIDecision: {},
}

// DataClassification labels the sensitivity of a resource.
type DataClassification string

const (
	ClassPublic            DataClassification = "PUBLIC"
	ClassInternal          DataClassification = "INTERNAL"
	ClassPersonal          DataClassification = "PERSONAL"
	ClassSensitivePersonal DataClassification = "SENSITIVE_PERSONAL"
	ClassPHI               DataClassification = "PHI"
	ClassPCI               DataClassification = "PCI"
)

// sensitiveClassifications force audit on any grant.
var sensitiveClassifications = map[DataClassification]struct{}{
	ClassSensitivePersonal: {},
	ClassPHI:               {},
	ClassPCI:               {},
}

// Role is a static RBAC role. Privileged roles always require MFA.
type Role struct {
	ID                  string               `yaml:"id"`
	Permissions         []Permission         `yaml:"permissions"`
	ResourceTypes       []string             `yaml:"resource_types"`
	DataClassifications []DataClassification `yaml:"data_classifications"`
	Privileged          bool                 `yaml:"privileged"`
	MaxSessionDuration  time.Duration        `yaml:"max_session_duration"`
	MFARequired         bool                 `yaml:"mfa_required"`
}

// Effect is the outcome an attribute policy produces when it matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// AttributePolicy is an ABAC rule: it matches when every listed attribute
// compares equal to the supplied value. Condition optionally holds a CEL
// expression evaluated over the same attribute maps.
type AttributePolicy struct {
	ID            string            `yaml:"id"`
	SubjectAttrs  map[string]string `yaml:"subject_attrs"`
	ResourceAttrs map[string]string `yaml:"resource_attrs"`
	EnvAttrs      map[string]string `yaml:"env_attrs"`
	Effect        Effect            `yaml:"effect"`
	Permissions   []Permission      `yaml:"permissions"`
	Condition     string            `yaml:"condition,omitempty"`
}

// Model selects which evaluation passes run.
type Model string

const (
	ModelRBAC   Model = "rbac"
	ModelABAC   Model = "abac"
	ModelHybrid Model = "hybrid"
)

// AccessDecision is the request-scoped outcome of a policy check.
type AccessDecision struct {
	Allowed       bool
	Reason        string
	RoleID        string // granting role, if RBAC decided
	PolicyID      string // granting or denying policy, if ABAC decided
	RequiresMFA   bool
	AuditRequired bool
}

// Request is one access check.
type Request struct {
	Subject        string
	SubjectAttrs   map[string]string
	Roles          []string
	Permission     Permission
	ResourceType   string
	ResourceAttrs  map[string]string
	Classification DataClassification // empty means unclassified
	EnvAttrs       map[string]string
	Justification  string // required for privileged access to audit/config/breach records
}
