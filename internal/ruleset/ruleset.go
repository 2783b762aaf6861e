// Package ruleset reads organization rule sets from YAML seed files.
package ruleset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"casegate/internal/compliance"
	"casegate/internal/domain"
)

var ErrInvalidRuleSet = errors.New("invalid rule set")

type RuleSet struct {
	OrganizationID string
	Rules          []domain.ComplianceRule
}

type ruleSetFile struct {
	OrganizationID string     `yaml:"organization_id"`
	Rules          []ruleFile `yaml:"rules"`
}

type ruleFile struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Condition   conditionFile   `yaml:"condition"`
	Requirement requirementFile `yaml:"requirement"`
	Severity    domain.Severity `yaml:"severity"`
	Active      *bool           `yaml:"active"`
}

type conditionFile struct {
	Type  domain.ConditionType `yaml:"type"`
	Field string               `yaml:"field"`
	Value string               `yaml:"value"`
}

type requirementFile struct {
	Type   domain.RequirementType `yaml:"type"`
	Tag    domain.DocumentTag     `yaml:"tag"`
	Field  string                 `yaml:"field"`
	Signed bool                   `yaml:"signed"`
}

// Problem is a rule that will load but cannot behave as written. Such rules
// still evaluate (unknown conditions never apply, unknown requirements are
// never satisfied), so problems are reported rather than rejected.
type Problem struct {
	RuleID  string
	Message string
}

func (p Problem) String() string {
	return p.RuleID + ": " + p.Message
}

func LoadFile(path string) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("open rule set: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a rule set. Structural defects (missing ids, duplicates,
// unknown keys) fail the load.
func Load(r io.Reader) (RuleSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw ruleSetFile
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return RuleSet{}, fmt.Errorf("%w: empty document", ErrInvalidRuleSet)
		}
		return RuleSet{}, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if raw.OrganizationID == "" {
		return RuleSet{}, fmt.Errorf("%w: organization_id is required", ErrInvalidRuleSet)
	}

	set := RuleSet{OrganizationID: raw.OrganizationID, Rules: make([]domain.ComplianceRule, 0, len(raw.Rules))}
	seen := make(map[string]struct{}, len(raw.Rules))
	for i, rf := range raw.Rules {
		if rf.ID == "" {
			return RuleSet{}, fmt.Errorf("%w: rule %d has no id", ErrInvalidRuleSet, i)
		}
		if _, dup := seen[rf.ID]; dup {
			return RuleSet{}, fmt.Errorf("%w: duplicate rule id %s", ErrInvalidRuleSet, rf.ID)
		}
		seen[rf.ID] = struct{}{}
		set.Rules = append(set.Rules, rf.toRule(raw.OrganizationID))
	}
	return set, nil
}

func (rf ruleFile) toRule(organizationID string) domain.ComplianceRule {
	active := true
	if rf.Active != nil {
		active = *rf.Active
	}
	severity := rf.Severity
	if severity == "" {
		severity = domain.SeverityBlocker
	}
	name := rf.Name
	if name == "" {
		name = rf.ID
	}
	return domain.ComplianceRule{
		ID:               rf.ID,
		OrganizationID:   organizationID,
		Name:             name,
		Description:      rf.Description,
		ConditionType:    rf.Condition.Type,
		ConditionField:   rf.Condition.Field,
		ConditionValue:   rf.Condition.Value,
		RequirementType:  rf.Requirement.Type,
		RequirementTag:   rf.Requirement.Tag,
		RequirementField: rf.Requirement.Field,
		RequiresSigned:   rf.Requirement.Signed,
		Severity:         severity,
		IsActive:         active,
	}
}

// Validate lists rules that are well-formed YAML but semantically off.
func (s RuleSet) Validate() []Problem {
	var problems []Problem
	add := func(id, format string, args ...any) {
		problems = append(problems, Problem{RuleID: id, Message: fmt.Sprintf(format, args...)})
	}
	for _, r := range s.Rules {
		switch {
		case !compliance.KnownCondition(r.ConditionType):
			add(r.ID, "unknown condition type %q, rule never applies", r.ConditionType)
		case (r.ConditionType == domain.ConditionStageEquals || r.ConditionType == domain.ConditionStageAtLeast) &&
			!domain.Stage(r.ConditionValue).Valid():
			add(r.ID, "unknown stage %q, rule never applies", r.ConditionValue)
		case r.ConditionType == domain.ConditionFieldPresent && r.ConditionField == "":
			add(r.ID, "field_present condition without a field, rule never applies")
		}

		switch {
		case !compliance.KnownRequirement(r.RequirementType):
			add(r.ID, "unknown requirement type %q, rule is never satisfied", r.RequirementType)
		case r.RequirementType == domain.RequirementFieldCompleted && r.RequirementField == "":
			add(r.ID, "field_completed requirement without a field, rule is never satisfied")
		case r.RequirementType != domain.RequirementFieldCompleted && r.RequirementTag == "":
			add(r.ID, "%s requirement without a document tag, rule is never satisfied", r.RequirementType)
		case r.RequirementType != domain.RequirementFieldCompleted && !r.RequirementTag.Known():
			add(r.ID, "unrecognised document tag %q", r.RequirementTag)
		}

		if r.Severity != domain.SeverityBlocker && r.Severity != domain.SeverityWarning {
			add(r.ID, "unknown severity %q", r.Severity)
		}
	}
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].RuleID < problems[j].RuleID })
	return problems
}

type RuleWriter interface {
	UpsertRule(ctx context.Context, rule domain.ComplianceRule) error
}

// Import upserts every rule in the set and returns how many were written.
func Import(ctx context.Context, w RuleWriter, s RuleSet) (int, error) {
	for i, r := range s.Rules {
		if err := w.UpsertRule(ctx, r); err != nil {
			return i, fmt.Errorf("upsert rule %s: %w", r.ID, err)
		}
	}
	return len(s.Rules), nil
}
