package api

import (
	"context"
	"net/http"
	"time"

	"casegate/internal/compliance"
	"casegate/internal/domain"
)

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request, organizationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rules, err := h.Store.ListRules(ctx, organizationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization_id": organizationID, "rules": rules})
}

// PutRule creates or replaces a rule. Unknown condition or requirement
// types are accepted and reported back, since they degrade to never
// applying or never being satisfied rather than failing evaluation.
func (h *Handler) PutRule(w http.ResponseWriter, r *http.Request, organizationID, ruleID string) {
	var rule domain.ComplianceRule
	if err := decodeJSON(w, r, &rule); err != nil {
		h.writeError(w, r, err)
		return
	}
	if rule.ID != "" && rule.ID != ruleID {
		h.writeError(w, r, badRequest("rule id %q does not match path", rule.ID))
		return
	}
	rule.ID = ruleID
	rule.OrganizationID = organizationID
	if rule.Name == "" {
		h.writeError(w, r, badRequest("name is required"))
		return
	}
	if rule.Severity == "" {
		rule.Severity = domain.SeverityBlocker
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.UpsertRule(ctx, rule); err != nil {
		h.writeError(w, r, err)
		return
	}

	var warnings []string
	if !compliance.KnownCondition(rule.ConditionType) {
		warnings = append(warnings, "unknown condition type, rule never applies")
	}
	if !compliance.KnownRequirement(rule.RequirementType) {
		warnings = append(warnings, "unknown requirement type, rule is never satisfied")
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule": rule, "warnings": warnings})
}
