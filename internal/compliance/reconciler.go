package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"casegate/internal/domain"
	"casegate/internal/syncx"
)

// SnapshotLoader builds the evaluation snapshot for a case. It returns an
// error wrapping domain.ErrNotFound when the case does not exist.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, caseID string) (domain.CaseSnapshot, error)
}

type BlockerStore interface {
	ListUnresolvedBlockers(ctx context.Context, caseID string) ([]domain.Blocker, error)
	CreateBlocker(ctx context.Context, b domain.Blocker) error
	ResolveBlocker(ctx context.Context, blockerID string, resolvedAt time.Time) error
}

// CaseLocker is implemented by stores that can serialize work on a case
// across processes.
type CaseLocker interface {
	LockCase(ctx context.Context, caseID string) (unlock func(), err error)
}

type SyncResult struct {
	CaseID   string           `json:"case_id"`
	Created  []domain.Blocker `json:"created"`
	Resolved []domain.Blocker `json:"resolved"`
	Open     int              `json:"open"`
}

type Reconciler struct {
	cases    SnapshotLoader
	engine   *Engine
	blockers BlockerStore
	locks    *syncx.KeyedMutex
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewReconciler(cases SnapshotLoader, engine *Engine, blockers BlockerStore, metrics Recorder, logger *slog.Logger) *Reconciler {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cases:    cases,
		engine:   engine,
		blockers: blockers,
		locks:    syncx.NewKeyedMutex(),
		metrics:  metrics,
		logger:   logger.With("component", "compliance.reconciler"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Sync brings the case's unresolved blockers in line with the current rule
// evaluation. New violations are recorded, vanished ones are resolved and
// blockers present in both sets are left as first detected.
func (r *Reconciler) Sync(ctx context.Context, caseID string) (SyncResult, error) {
	unlock := r.locks.Lock(caseID)
	defer unlock()

	if locker, ok := r.blockers.(CaseLocker); ok {
		release, err := locker.LockCase(ctx, caseID)
		if err != nil {
			return SyncResult{}, fmt.Errorf("lock case %s: %w", caseID, err)
		}
		defer release()
	}

	snap, err := r.cases.LoadSnapshot(ctx, caseID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load snapshot for case %s: %w", caseID, err)
	}

	candidates, err := r.engine.Evaluate(ctx, snap.OrganizationID, snap)
	if err != nil {
		return SyncResult{}, err
	}
	current := make(map[string]domain.BlockerCandidate, len(candidates))
	for _, c := range candidates {
		current[c.RuleID] = c
	}

	open, err := r.blockers.ListUnresolvedBlockers(ctx, caseID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list unresolved blockers for case %s: %w", caseID, err)
	}
	existing := make(map[string]domain.Blocker, len(open))
	for _, b := range open {
		existing[b.RuleID] = b
	}

	result := SyncResult{CaseID: caseID, Created: []domain.Blocker{}, Resolved: []domain.Blocker{}}
	now := r.now()

	for _, c := range candidates {
		if _, ok := existing[c.RuleID]; ok {
			continue
		}
		b := domain.Blocker{
			ID:        r.newID(),
			CaseID:    caseID,
			RuleID:    c.RuleID,
			RuleName:  c.RuleName,
			Severity:  c.Severity,
			Message:   c.Message,
			FixAction: c.FixAction,
			FixURL:    c.FixURL,
			CreatedAt: now,
		}
		if err := r.blockers.CreateBlocker(ctx, b); err != nil {
			if errors.Is(err, domain.ErrDuplicateBlocker) {
				r.logger.DebugContext(ctx, "blocker already open",
					slog.String("case_id", caseID),
					slog.String("rule_id", c.RuleID),
				)
				continue
			}
			return result, fmt.Errorf("create blocker for rule %s: %w", c.RuleID, err)
		}
		existing[c.RuleID] = b
		result.Created = append(result.Created, b)
	}

	for _, b := range open {
		if _, ok := current[b.RuleID]; ok {
			continue
		}
		if err := r.blockers.ResolveBlocker(ctx, b.ID, now); err != nil {
			return result, fmt.Errorf("resolve blocker %s: %w", b.ID, err)
		}
		b.Resolved = true
		resolvedAt := now
		b.ResolvedAt = &resolvedAt
		result.Resolved = append(result.Resolved, b)
	}

	result.Open = len(current)
	r.metrics.BlockersCreated(len(result.Created))
	r.metrics.BlockersResolved(len(result.Resolved))
	if len(result.Created) > 0 || len(result.Resolved) > 0 {
		r.logger.InfoContext(ctx, "blockers synced",
			slog.String("case_id", caseID),
			slog.Int("created", len(result.Created)),
			slog.Int("resolved", len(result.Resolved)),
			slog.Int("open", result.Open),
		)
	}
	return result, nil
}
