package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"casegate/internal/compliance"
	"casegate/internal/domain"
)

type fakeDocs struct {
	mu       sync.Mutex
	docs     map[string]domain.Document
	requests map[string]domain.EnvelopeStatus
	signers  map[string]domain.SignerStatus
}

func newFakeDocs(docs ...domain.Document) *fakeDocs {
	f := &fakeDocs{
		docs:     map[string]domain.Document{},
		requests: map[string]domain.EnvelopeStatus{},
		signers:  map[string]domain.SignerStatus{},
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

func (f *fakeDocs) GetDocumentByEnvelope(_ context.Context, envelopeID string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.EnvelopeID != nil && *d.EnvelopeID == envelopeID {
			return d, nil
		}
	}
	return domain.Document{}, fmt.Errorf("envelope %s: %w", envelopeID, domain.ErrNotFound)
}

func (f *fakeDocs) AttachEnvelope(_ context.Context, documentID, envelopeID string, _ domain.EnvelopeStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	id := envelopeID
	d.EnvelopeID = &id
	f.docs[documentID] = d
	return nil
}

func (f *fakeDocs) RecordEnvelopeStatus(_ context.Context, _ string, envelopeID string, status domain.EnvelopeStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests[envelopeID].Terminal() {
		return nil
	}
	f.requests[envelopeID] = status
	return nil
}

func (f *fakeDocs) RecordSignerStatus(_ context.Context, envelopeID, signerID, _ string, status domain.SignerStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signers[envelopeID+"/"+signerID] = status
	return nil
}

func (f *fakeDocs) SetDocumentStatus(_ context.Context, id string, status domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	d.Status = status
	f.docs[id] = d
	return nil
}

func (f *fakeDocs) envelopeStatus(envelopeID string) domain.EnvelopeStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[envelopeID]
}

func (f *fakeDocs) documentStatus(id string) domain.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

type fakeSyncer struct {
	mu    sync.Mutex
	cases []string
	err   error
}

func (f *fakeSyncer) Sync(_ context.Context, caseID string) (compliance.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cases = append(f.cases, caseID)
	return compliance.SyncResult{CaseID: caseID}, f.err
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memoryObjects) PutObject(_ context.Context, key string, content []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = content
	return nil
}

func strPtr(s string) *string { return &s }
