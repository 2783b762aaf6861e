package compliance

import "casegate/internal/domain"

type conditionFunc func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool

var conditions = map[domain.ConditionType]conditionFunc{
	domain.ConditionAlways: func(domain.ComplianceRule, domain.CaseSnapshot) bool {
		return true
	},
	domain.ConditionDispositionEquals: func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
		return string(snap.Disposition) == rule.ConditionValue
	},
	domain.ConditionServiceTypeEquals: func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
		return snap.ServiceType != nil && *snap.ServiceType == rule.ConditionValue
	},
	domain.ConditionStageEquals: func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
		return string(snap.Stage) == rule.ConditionValue
	},
	domain.ConditionStageAtLeast: func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
		return snap.Stage.AtLeast(domain.Stage(rule.ConditionValue))
	},
	domain.ConditionFieldPresent: func(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
		return snap.FieldPresent(rule.ConditionField)
	},
}

// ConditionApplies reports whether rule's trigger matches the snapshot.
// Unknown condition types never match.
func ConditionApplies(rule domain.ComplianceRule, snap domain.CaseSnapshot) bool {
	fn, ok := conditions[rule.ConditionType]
	if !ok {
		return false
	}
	return fn(rule, snap)
}

// KnownCondition reports whether t has an evaluator.
func KnownCondition(t domain.ConditionType) bool {
	_, ok := conditions[t]
	return ok
}
