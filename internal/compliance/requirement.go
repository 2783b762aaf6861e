package compliance

import "casegate/internal/domain"

type requirementFunc func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool

var requirements = map[domain.RequirementType]requirementFunc{
	domain.RequirementDocumentExists:     documentExists,
	domain.RequirementDocumentSigned:     documentSigned,
	domain.RequirementFieldCompleted:     fieldCompleted,
	domain.RequirementSignatureCompleted: signatureCompleted,
}

// RequirementSatisfied reports whether rule's required artifact is in place.
// Unknown requirement types are treated as satisfied.
func RequirementSatisfied(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
	fn, ok := requirements[rule.RequirementType]
	if !ok {
		return true
	}
	return fn(rule, snap)
}

func KnownRequirement(t domain.RequirementType) bool {
	_, ok := requirements[t]
	return ok
}

func documentExists(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
	if rule.RequirementTag == "" {
		return true
	}
	return len(snap.DocumentsTagged(rule.RequirementTag)) > 0
}

// documentSigned accepts any document with the tag. With RequiresSigned only a
// completed envelope counts; otherwise a manually signed copy is enough.
func documentSigned(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
	for _, doc := range snap.DocumentsTagged(rule.RequirementTag) {
		if doc.EnvelopeStatus == domain.EnvelopeCompleted {
			return true
		}
		if !rule.RequiresSigned && doc.Status == domain.DocumentSigned {
			return true
		}
	}
	return false
}

func fieldCompleted(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
	return snap.FieldPresent(rule.RequirementField)
}

func signatureCompleted(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
	for _, doc := range snap.DocumentsTagged(rule.RequirementTag) {
		if doc.EnvelopeStatus == domain.EnvelopeCompleted {
			return true
		}
	}
	return false
}
