package domain

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type DocumentTag string

const (
	TagGeneralPriceList       DocumentTag = "general_price_list"
	TagStatementOfGoods       DocumentTag = "statement_of_goods"
	TagContract               DocumentTag = "contract"
	TagCremationAuthorization DocumentTag = "cremation_authorization"
	TagEmbalmingAuthorization DocumentTag = "embalming_authorization"
	TagDeathCertificate       DocumentTag = "death_certificate"
	TagBurialPermit           DocumentTag = "burial_permit"
	TagTransferAuthorization  DocumentTag = "transfer_authorization"
	TagDonationConsent        DocumentTag = "donation_consent"
	TagOther                  DocumentTag = "other"
)

var tagLabels = map[DocumentTag]string{
	TagGeneralPriceList:       "General Price List",
	TagStatementOfGoods:       "Statement of Goods and Services",
	TagContract:               "Contract",
	TagCremationAuthorization: "Cremation Authorization",
	TagEmbalmingAuthorization: "Embalming Authorization",
	TagDeathCertificate:       "Death Certificate",
	TagBurialPermit:           "Burial Permit",
	TagTransferAuthorization:  "Transfer Authorization",
	TagDonationConsent:        "Donation Consent",
	TagOther:                  "Other",
}

// Label is the human-readable name used in blocker messages.
func (t DocumentTag) Label() string {
	if l, ok := tagLabels[t]; ok {
		return l
	}
	return string(t)
}

func (t DocumentTag) Known() bool {
	_, ok := tagLabels[t]
	return ok
}

type Case struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Stage          Stage          `json:"stage"`
	Disposition    Disposition    `json:"disposition"`
	ServiceType    *string        `json:"service_type,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type Document struct {
	ID         string         `json:"id"`
	CaseID     string         `json:"case_id"`
	Name       string         `json:"name"`
	Tag        DocumentTag    `json:"tag"`
	Status     DocumentStatus `json:"status"`
	ObjectKey  string         `json:"object_key,omitempty"`
	EnvelopeID *string        `json:"envelope_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SignatureRequest is the persisted mirror of an envelope's state, kept
// current by webhook ingestion.
type SignatureRequest struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	EnvelopeID  string         `json:"envelope_id"`
	Status      EnvelopeStatus `json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SnapshotDocument is a document as seen by rule evaluation. EnvelopeStatus
// is empty when no signature request was ever issued for it.
type SnapshotDocument struct {
	ID             string         `json:"id"`
	Tag            DocumentTag    `json:"tag"`
	Status         DocumentStatus `json:"status"`
	EnvelopeStatus EnvelopeStatus `json:"envelope_status,omitempty"`
}

// CaseSnapshot is the read-only projection rules are evaluated against.
type CaseSnapshot struct {
	CaseID         string             `json:"case_id"`
	OrganizationID string             `json:"organization_id"`
	Stage          Stage              `json:"stage"`
	Disposition    Disposition        `json:"disposition"`
	ServiceType    *string            `json:"service_type,omitempty"`
	Documents      []SnapshotDocument `json:"documents"`
	Fields         map[string]any     `json:"fields"`
}

// WithStage returns a copy of the snapshot placed at a hypothetical stage.
func (s CaseSnapshot) WithStage(stage Stage) CaseSnapshot {
	s.Stage = stage
	return s
}

// FieldPresent reports whether name is set to a non-null value.
func (s CaseSnapshot) FieldPresent(name string) bool {
	if name == "" || s.Fields == nil {
		return false
	}
	v, ok := s.Fields[name]
	return ok && v != nil
}

// DocumentsTagged returns every document carrying tag, in snapshot order.
func (s CaseSnapshot) DocumentsTagged(tag DocumentTag) []SnapshotDocument {
	out := make([]SnapshotDocument, 0, 1)
	for _, d := range s.Documents {
		if d.Tag == tag {
			out = append(out, d)
		}
	}
	return out
}

type Blocker struct {
	ID         string     `json:"id"`
	CaseID     string     `json:"case_id"`
	RuleID     string     `json:"rule_id"`
	RuleName   string     `json:"rule_name"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	FixAction  *string    `json:"fix_action,omitempty"`
	FixURL     *string    `json:"fix_url,omitempty"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type BlockerCandidate struct {
	RuleID    string   `json:"rule_id"`
	RuleName  string   `json:"rule_name"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	FixAction *string  `json:"fix_action,omitempty"`
	FixURL    *string  `json:"fix_url,omitempty"`
}

// ErrDuplicateBlocker is returned by stores when an unresolved blocker for
// the same case and rule already exists.
var ErrDuplicateBlocker = errors.New("unresolved blocker already exists")
