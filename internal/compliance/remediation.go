package compliance

import (
	"fmt"

	"casegate/internal/domain"
)

func candidateFor(rule domain.ComplianceRule, snap domain.CaseSnapshot) domain.BlockerCandidate {
	c := domain.BlockerCandidate{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Message:  rule.Description,
		Severity: rule.Severity,
	}
	if c.Severity == "" {
		c.Severity = domain.SeverityBlocker
	}
	if c.Message == "" {
		c.Message = defaultMessage(rule)
	}
	c.FixAction, c.FixURL = fixFor(rule, snap.CaseID)
	return c
}

func defaultMessage(rule domain.ComplianceRule) string {
	label := rule.RequirementTag.Label()
	switch rule.RequirementType {
	case domain.RequirementDocumentExists:
		return fmt.Sprintf("%s document is required", label)
	case domain.RequirementDocumentSigned:
		return fmt.Sprintf("%s must be signed", label)
	case domain.RequirementSignatureCompleted:
		return fmt.Sprintf("%s signature has not been completed", label)
	case domain.RequirementFieldCompleted:
		return fmt.Sprintf("Required field %q is missing", rule.RequirementField)
	default:
		return fmt.Sprintf("Rule %q is not satisfied", rule.Name)
	}
}

func fixFor(rule domain.ComplianceRule, caseID string) (*string, *string) {
	var action, url string
	switch rule.RequirementType {
	case domain.RequirementDocumentExists:
		action = fmt.Sprintf("Generate %s document", rule.RequirementTag.Label())
		url = fmt.Sprintf("/cases/%s/documents", caseID)
	case domain.RequirementDocumentSigned, domain.RequirementSignatureCompleted:
		action = fmt.Sprintf("Get %s signed", rule.RequirementTag.Label())
		url = fmt.Sprintf("/cases/%s/signatures", caseID)
	case domain.RequirementFieldCompleted:
		action = fmt.Sprintf("Complete %s", rule.RequirementField)
		url = fmt.Sprintf("/cases/%s/details", caseID)
	default:
		return nil, nil
	}
	return &action, &url
}
