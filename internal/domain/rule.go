package domain

type ConditionType string

const (
	ConditionAlways            ConditionType = "always"
	ConditionDispositionEquals ConditionType = "disposition_equals"
	ConditionServiceTypeEquals ConditionType = "service_type_equals"
	ConditionStageEquals       ConditionType = "stage_equals"
	ConditionStageAtLeast      ConditionType = "stage_at_least"
	ConditionFieldPresent      ConditionType = "field_present"
)

type RequirementType string

const (
	RequirementDocumentExists     RequirementType = "document_exists"
	RequirementDocumentSigned     RequirementType = "document_signed"
	RequirementFieldCompleted     RequirementType = "field_completed"
	RequirementSignatureCompleted RequirementType = "signature_completed"
)

type Severity string

const (
	SeverityBlocker Severity = "blocker"
	SeverityWarning Severity = "warning"
)

type ComplianceRule struct {
	ID               string          `json:"id" yaml:"id"`
	OrganizationID   string          `json:"organization_id" yaml:"organization_id"`
	Name             string          `json:"name" yaml:"name"`
	Description      string          `json:"description,omitempty" yaml:"description,omitempty"`
	ConditionType    ConditionType   `json:"condition_type" yaml:"condition_type"`
	ConditionField   string          `json:"condition_field,omitempty" yaml:"condition_field,omitempty"`
	ConditionValue   string          `json:"condition_value,omitempty" yaml:"condition_value,omitempty"`
	RequirementType  RequirementType `json:"requirement_type" yaml:"requirement_type"`
	RequirementTag   DocumentTag     `json:"requirement_tag,omitempty" yaml:"requirement_tag,omitempty"`
	RequirementField string          `json:"requirement_field,omitempty" yaml:"requirement_field,omitempty"`
	RequiresSigned   bool            `json:"requires_signed,omitempty" yaml:"requires_signed,omitempty"`
	Severity         Severity        `json:"severity" yaml:"severity"`
	IsActive         bool            `json:"is_active" yaml:"is_active"`
}
