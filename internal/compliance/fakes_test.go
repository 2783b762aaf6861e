package compliance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"casegate/internal/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	snapshots map[string]domain.CaseSnapshot
	rules     []domain.ComplianceRule
	blockers  map[string]domain.Blocker
	creates   int
	resolves  int
	ruleCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: make(map[string]domain.CaseSnapshot),
		blockers:  make(map[string]domain.Blocker),
	}
}

func (f *fakeStore) putSnapshot(s domain.CaseSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[s.CaseID] = s
}

func (f *fakeStore) update(caseID string, fn func(*domain.CaseSnapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snapshots[caseID]
	fn(&s)
	f.snapshots[caseID] = s
}

func (f *fakeStore) LoadSnapshot(_ context.Context, caseID string) (domain.CaseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[caseID]
	if !ok {
		return domain.CaseSnapshot{}, fmt.Errorf("case %s: %w", caseID, domain.ErrNotFound)
	}
	s.Documents = append([]domain.SnapshotDocument(nil), s.Documents...)
	return s, nil
}

func (f *fakeStore) ListActiveRules(_ context.Context, organizationID string) ([]domain.ComplianceRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleCalls++
	out := make([]domain.ComplianceRule, 0, len(f.rules))
	for _, r := range f.rules {
		if r.OrganizationID == organizationID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUnresolvedBlockers(_ context.Context, caseID string) ([]domain.Blocker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Blocker, 0)
	for _, b := range f.blockers {
		if b.CaseID == caseID && !b.Resolved {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

func (f *fakeStore) CreateBlocker(_ context.Context, b domain.Blocker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.blockers {
		if existing.CaseID == b.CaseID && existing.RuleID == b.RuleID && !existing.Resolved {
			return domain.ErrDuplicateBlocker
		}
	}
	f.creates++
	f.blockers[b.ID] = b
	return nil
}

func (f *fakeStore) ResolveBlocker(_ context.Context, blockerID string, resolvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blockers[blockerID]
	if !ok {
		return domain.ErrNotFound
	}
	f.resolves++
	b.Resolved = true
	b.ResolvedAt = &resolvedAt
	f.blockers[blockerID] = b
	return nil
}

func (f *fakeStore) openRuleIDs(caseID string) []string {
	open, _ := f.ListUnresolvedBlockers(context.Background(), caseID)
	ids := make([]string, 0, len(open))
	for _, b := range open {
		ids = append(ids, b.RuleID)
	}
	return ids
}

func candidateRuleIDs(cs []domain.BlockerCandidate) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.RuleID)
	}
	sort.Strings(ids)
	return ids
}

// racingStore reports no open blockers so every sync attempts a create,
// exercising the duplicate-create path.
type racingStore struct {
	*fakeStore
}

func (r racingStore) ListUnresolvedBlockers(context.Context, string) ([]domain.Blocker, error) {
	return nil, nil
}
