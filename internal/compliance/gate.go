package compliance

import (
	"context"
	"errors"
	"fmt"

	"casegate/internal/domain"
)

var ErrUnknownStage = errors.New("unknown stage")

type GateResult struct {
	Allowed  bool                      `json:"allowed"`
	Target   domain.Stage              `json:"target"`
	Blockers []domain.BlockerCandidate `json:"blockers"`
}

// Gate answers whether a case may move to a stage. It evaluates a
// hypothetical snapshot and never writes.
type Gate struct {
	cases   SnapshotLoader
	engine  *Engine
	metrics Recorder
}

func NewGate(cases SnapshotLoader, engine *Engine, metrics Recorder) *Gate {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Gate{cases: cases, engine: engine, metrics: metrics}
}

func (g *Gate) CanAdvance(ctx context.Context, caseID string, target domain.Stage) (GateResult, error) {
	if !target.Valid() {
		return GateResult{}, fmt.Errorf("%w: %q", ErrUnknownStage, target)
	}
	snap, err := g.cases.LoadSnapshot(ctx, caseID)
	if err != nil {
		return GateResult{}, fmt.Errorf("load snapshot for case %s: %w", caseID, err)
	}
	candidates, err := g.engine.Evaluate(ctx, snap.OrganizationID, snap.WithStage(target))
	if err != nil {
		return GateResult{}, err
	}
	res := GateResult{Target: target, Blockers: BlockingOnly(candidates)}
	res.Allowed = len(res.Blockers) == 0
	g.metrics.GateDecision(target, res.Allowed)
	return res, nil
}

func (g *Gate) CanClose(ctx context.Context, caseID string) (GateResult, error) {
	return g.CanAdvance(ctx, caseID, domain.StageClose)
}

// BlockingOnly drops warning-severity candidates.
func BlockingOnly(candidates []domain.BlockerCandidate) []domain.BlockerCandidate {
	out := make([]domain.BlockerCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Severity == domain.SeverityBlocker {
			out = append(out, c)
		}
	}
	return out
}
