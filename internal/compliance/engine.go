package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"casegate/internal/domain"
)

// RuleSource returns the active rules configured for an organization.
type RuleSource interface {
	ListActiveRules(ctx context.Context, organizationID string) ([]domain.ComplianceRule, error)
}

// Recorder receives compliance measurements. A nil Recorder is allowed.
type Recorder interface {
	ObserveEvaluation(rules, violations int, d time.Duration)
	BlockersCreated(n int)
	BlockersResolved(n int)
	GateDecision(target domain.Stage, allowed bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEvaluation(int, int, time.Duration) {}
func (nopRecorder) BlockersCreated(int)                       {}
func (nopRecorder) BlockersResolved(int)                      {}
func (nopRecorder) GateDecision(domain.Stage, bool)           {}

// Evaluate runs every active rule belonging to organizationID against snap
// and returns the violated ones in rule order. It is pure.
func Evaluate(organizationID string, rules []domain.ComplianceRule, snap domain.CaseSnapshot) []domain.BlockerCandidate {
	out := make([]domain.BlockerCandidate, 0)
	for _, rule := range rules {
		if !rule.IsActive || rule.OrganizationID != organizationID {
			continue
		}
		if !ConditionApplies(rule, snap) {
			continue
		}
		if RequirementSatisfied(rule, snap) {
			continue
		}
		out = append(out, candidateFor(rule, snap))
	}
	return out
}

type Engine struct {
	rules   RuleSource
	metrics Recorder
	logger  *slog.Logger
}

func NewEngine(rules RuleSource, metrics Recorder, logger *slog.Logger) *Engine {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{rules: rules, metrics: metrics, logger: logger.With("component", "compliance.engine")}
}

// Evaluate fetches the organization's active rules and evaluates them.
func (e *Engine) Evaluate(ctx context.Context, organizationID string, snap domain.CaseSnapshot) ([]domain.BlockerCandidate, error) {
	start := time.Now()
	rules, err := e.rules.ListActiveRules(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list active rules for %s: %w", organizationID, err)
	}
	for _, r := range rules {
		if !KnownCondition(r.ConditionType) || !KnownRequirement(r.RequirementType) {
			e.logger.WarnContext(ctx, "rule has unknown type",
				slog.String("rule_id", r.ID),
				slog.String("condition_type", string(r.ConditionType)),
				slog.String("requirement_type", string(r.RequirementType)),
			)
		}
	}
	candidates := Evaluate(organizationID, rules, snap)
	e.metrics.ObserveEvaluation(len(rules), len(candidates), time.Since(start))
	return candidates, nil
}
