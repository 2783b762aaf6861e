package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"casegate/internal/domain"
)

// MemoryStore implements the same surface as PostgresStore in process. It
// backs local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	cases     map[string]domain.Case
	documents map[string]domain.Document
	requests  map[string]domain.SignatureRequest // by envelope id
	order     map[string]int64                   // first-sighting sequence by envelope id
	seq       int64
	signers   map[string]signerRow
	rules     map[string]domain.ComplianceRule
	blockers  map[string]domain.Blocker
	now       func() time.Time
}

type signerRow struct {
	EnvelopeID string
	SignerID   string
	Email      string
	Status     domain.SignerStatus
	UpdatedAt  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:     make(map[string]domain.Case),
		documents: make(map[string]domain.Document),
		requests:  make(map[string]domain.SignatureRequest),
		order:     make(map[string]int64),
		signers:   make(map[string]signerRow),
		rules:     make(map[string]domain.ComplianceRule),
		blockers:  make(map[string]domain.Blocker),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) CreateCase(_ context.Context, c domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; ok {
		return fmt.Errorf("case %s already exists", c.ID)
	}
	now := m.now()
	c.Fields = copyFields(c.Fields)
	c.CreatedAt, c.UpdatedAt = now, now
	m.cases[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, caseID string) (domain.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[caseID]
	if !ok {
		return domain.Case{}, notFound("case", caseID)
	}
	c.Fields = copyFields(c.Fields)
	return c, nil
}

func (m *MemoryStore) UpdateCaseFields(_ context.Context, caseID string, fields map[string]any) (domain.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return domain.Case{}, notFound("case", caseID)
	}
	merged := copyFields(c.Fields)
	for k, v := range fields {
		merged[k] = v
	}
	c.Fields = merged
	c.UpdatedAt = m.now()
	m.cases[caseID] = c
	c.Fields = copyFields(merged)
	return c, nil
}

func (m *MemoryStore) SetCaseStage(_ context.Context, caseID string, stage domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return notFound("case", caseID)
	}
	c.Stage = stage
	c.UpdatedAt = m.now()
	m.cases[caseID] = c
	return nil
}

func (m *MemoryStore) ListOpenCaseIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.cases))
	for id, c := range m.cases {
		if c.Stage != domain.StageClose {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[d.CaseID]; !ok {
		return notFound("case", d.CaseID)
	}
	if _, ok := m.documents[d.ID]; ok {
		return fmt.Errorf("document %s already exists", d.ID)
	}
	now := m.now()
	d.CreatedAt, d.UpdatedAt = now, now
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, documentID string) (domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[documentID]
	if !ok {
		return domain.Document{}, notFound("document", documentID)
	}
	return d, nil
}

func (m *MemoryStore) GetDocumentByEnvelope(_ context.Context, envelopeID string) (domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[envelopeID]
	if !ok {
		return domain.Document{}, notFound("envelope", envelopeID)
	}
	d, ok := m.documents[req.DocumentID]
	if !ok {
		return domain.Document{}, notFound("document", req.DocumentID)
	}
	return d, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, caseID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Document, 0)
	for _, d := range m.documents {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) SetDocumentStatus(_ context.Context, documentID string, status domain.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[documentID]
	if !ok {
		return notFound("document", documentID)
	}
	d.Status = status
	d.UpdatedAt = m.now()
	m.documents[documentID] = d
	return nil
}

func (m *MemoryStore) SetDocumentObjectKey(_ context.Context, documentID, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[documentID]
	if !ok {
		return notFound("document", documentID)
	}
	d.ObjectKey = objectKey
	d.UpdatedAt = m.now()
	m.documents[documentID] = d
	return nil
}

// AttachEnvelope links an envelope to its document and opens the signature
// request that mirrors it. A document never moves back to an envelope that
// was first seen before the one it already points at.
func (m *MemoryStore) AttachEnvelope(_ context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[documentID]
	if !ok {
		return notFound("document", documentID)
	}
	if _, ok := m.requests[envelopeID]; !ok {
		m.openRequest(domain.SignatureRequest{
			ID:         envelopeID,
			DocumentID: documentID,
			EnvelopeID: envelopeID,
			Status:     status,
			CreatedAt:  at,
			UpdatedAt:  at,
		})
	}
	if d.EnvelopeID != nil && *d.EnvelopeID != envelopeID && m.newerRequest(*d.EnvelopeID, envelopeID) {
		return nil
	}
	id := envelopeID
	d.EnvelopeID = &id
	d.UpdatedAt = at
	m.documents[documentID] = d
	return nil
}

func (m *MemoryStore) openRequest(req domain.SignatureRequest) {
	m.seq++
	m.order[req.EnvelopeID] = m.seq
	m.requests[req.EnvelopeID] = req
}

// newerRequest reports whether current was first seen after candidate.
// Equal timestamps fall back to sighting order.
func (m *MemoryStore) newerRequest(current, candidate string) bool {
	cur, ok := m.requests[current]
	if !ok {
		return false
	}
	cand := m.requests[candidate]
	if !cur.CreatedAt.Equal(cand.CreatedAt) {
		return cur.CreatedAt.After(cand.CreatedAt)
	}
	return m.order[current] > m.order[candidate]
}

func (m *MemoryStore) RecordEnvelopeStatus(_ context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[envelopeID]
	if !ok {
		req = domain.SignatureRequest{ID: envelopeID, DocumentID: documentID, EnvelopeID: envelopeID, CreatedAt: at}
		m.openRequest(req)
	}
	if req.Status.Terminal() {
		return nil
	}
	req.Status = status
	req.UpdatedAt = at
	if status == domain.EnvelopeCompleted {
		t := at
		req.CompletedAt = &t
	}
	m.requests[envelopeID] = req
	return nil
}

func (m *MemoryStore) RecordSignerStatus(_ context.Context, envelopeID, signerID, email string, status domain.SignerStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := envelopeID + "/" + signerID
	row, ok := m.signers[key]
	if ok && row.Status.Final() {
		return nil
	}
	m.signers[key] = signerRow{EnvelopeID: envelopeID, SignerID: signerID, Email: email, Status: status, UpdatedAt: at}
	return nil
}

func (m *MemoryStore) GetSignatureRequest(_ context.Context, envelopeID string) (domain.SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[envelopeID]
	if !ok {
		return domain.SignatureRequest{}, notFound("signature request", envelopeID)
	}
	return req, nil
}

func (m *MemoryStore) UpsertRule(_ context.Context, r domain.ComplianceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

func (m *MemoryStore) ListRules(_ context.Context, organizationID string) ([]domain.ComplianceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ComplianceRule, 0)
	for _, r := range m.rules {
		if r.OrganizationID == organizationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListActiveRules(ctx context.Context, organizationID string) ([]domain.ComplianceRule, error) {
	all, err := m.ListRules(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// LoadSnapshot projects a case, its documents and each document's latest
// envelope status.
func (m *MemoryStore) LoadSnapshot(_ context.Context, caseID string) (domain.CaseSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[caseID]
	if !ok {
		return domain.CaseSnapshot{}, notFound("case", caseID)
	}
	snap := domain.CaseSnapshot{
		CaseID:         c.ID,
		OrganizationID: c.OrganizationID,
		Stage:          c.Stage,
		Disposition:    c.Disposition,
		ServiceType:    c.ServiceType,
		Fields:         copyFields(c.Fields),
		Documents:      make([]domain.SnapshotDocument, 0),
	}
	docs := make([]domain.Document, 0)
	for _, d := range m.documents {
		if d.CaseID == caseID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	for _, d := range docs {
		sd := domain.SnapshotDocument{ID: d.ID, Tag: d.Tag, Status: d.Status}
		if d.EnvelopeID != nil {
			if req, ok := m.requests[*d.EnvelopeID]; ok {
				sd.EnvelopeStatus = req.Status
			}
		}
		snap.Documents = append(snap.Documents, sd)
	}
	return snap, nil
}

func (m *MemoryStore) ListUnresolvedBlockers(ctx context.Context, caseID string) ([]domain.Blocker, error) {
	return m.ListBlockers(ctx, caseID, false)
}

func (m *MemoryStore) ListBlockers(_ context.Context, caseID string, includeResolved bool) ([]domain.Blocker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Blocker, 0)
	for _, b := range m.blockers {
		if b.CaseID == caseID && (includeResolved || !b.Resolved) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RuleID < out[j].RuleID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateBlocker(_ context.Context, b domain.Blocker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.blockers {
		if existing.CaseID == b.CaseID && existing.RuleID == b.RuleID && !existing.Resolved {
			return fmt.Errorf("case %s rule %s: %w", b.CaseID, b.RuleID, domain.ErrDuplicateBlocker)
		}
	}
	m.blockers[b.ID] = b
	return nil
}

func (m *MemoryStore) ResolveBlocker(_ context.Context, blockerID string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blockers[blockerID]
	if !ok {
		return notFound("blocker", blockerID)
	}
	if b.Resolved {
		return nil
	}
	at := resolvedAt
	b.Resolved = true
	b.ResolvedAt = &at
	m.blockers[blockerID] = b
	return nil
}
