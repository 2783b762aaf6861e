package temporal

import (
	"errors"
	"time"

	"go.temporal.io/sdk/workflow"

	"casegate/internal/webhook"
)

const (
	DocumentSyncWorkflowName   = "DocumentSyncWorkflow"
	EnvelopeExpiryWorkflowName = "EnvelopeExpiryWorkflow"
)

var errEmptySyncInput = errors.New("document sync input carries neither an event nor a signed copy")

type SignedCopyInput struct {
	DocumentID string
	Filename   string
	ObjectKey  string
}

// DocumentSyncInput carries exactly one of Event or SignedCopy.
type DocumentSyncInput struct {
	Event      *webhook.Event
	SignedCopy *SignedCopyInput
}

type DocumentSyncResult struct {
	CaseID   string
	Created  []string
	Resolved []string
	Open     int
}

// DocumentSyncWorkflow applies one document change and then reconciles the
// owning case's blockers.
func DocumentSyncWorkflow(ctx workflow.Context, input DocumentSyncInput) (DocumentSyncResult, error) {
	logger := workflow.GetLogger(ctx)

	var caseID string
	switch {
	case input.Event != nil:
		var applied ApplyEventOutput
		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyApplyEvent),
			(*Activities).ApplyEventActivity, *input.Event).Get(ctx, &applied); err != nil {
			return DocumentSyncResult{}, err
		}
		caseID = applied.CaseID
	case input.SignedCopy != nil:
		var recorded RecordSignedCopyOutput
		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRecordSignedCopy),
			(*Activities).RecordSignedCopyActivity, RecordSignedCopyInput{
				DocumentID: input.SignedCopy.DocumentID,
				Filename:   input.SignedCopy.Filename,
				ObjectKey:  input.SignedCopy.ObjectKey,
			}).Get(ctx, &recorded); err != nil {
			return DocumentSyncResult{}, err
		}
		caseID = recorded.CaseID
	default:
		return DocumentSyncResult{}, errEmptySyncInput
	}

	var synced SyncBlockersOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicySyncBlockers),
		(*Activities).SyncBlockersActivity, SyncBlockersInput{CaseID: caseID}).Get(ctx, &synced); err != nil {
		return DocumentSyncResult{}, err
	}

	logger.Info("document sync finished", "case_id", caseID, "created", len(synced.Created), "resolved", len(synced.Resolved))
	return DocumentSyncResult{
		CaseID:   caseID,
		Created:  synced.Created,
		Resolved: synced.Resolved,
		Open:     synced.Open,
	}, nil
}

const (
	ExpiryOutcomeExpired = "expired"
	ExpiryOutcomeSettled = "settled"
)

type EnvelopeExpiryInput struct {
	EnvelopeID   string
	DocumentID   string
	ExpiresAfter time.Duration
}

type EnvelopeExpiryResult struct {
	EnvelopeID string
	Outcome    string
}

// EnvelopeExpiryWorkflow waits out an envelope's signing window and expires
// it unless a settled signal arrives first.
func EnvelopeExpiryWorkflow(ctx workflow.Context, input EnvelopeExpiryInput) (EnvelopeExpiryResult, error) {
	logger := workflow.GetLogger(ctx)
	result := EnvelopeExpiryResult{EnvelopeID: input.EnvelopeID}

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, input.ExpiresAfter)
	settledCh := workflow.GetSignalChannel(ctx, EnvelopeSettledSignalName)

	var settled *EnvelopeSettledSignal
	fired := false
	selector := workflow.NewSelector(ctx)
	selector.AddFuture(timer, func(f workflow.Future) {
		if err := f.Get(ctx, nil); err == nil {
			fired = true
		}
	})
	selector.AddReceive(settledCh, func(c workflow.ReceiveChannel, more bool) {
		var sig EnvelopeSettledSignal
		c.Receive(ctx, &sig)
		settled = &sig
	})
	selector.Select(ctx)

	if settled != nil {
		cancelTimer()
		logger.Info("envelope settled before expiry", "envelope_id", input.EnvelopeID, "event", string(settled.EventType))
		result.Outcome = ExpiryOutcomeSettled
		return result, nil
	}
	if !fired {
		result.Outcome = ExpiryOutcomeSettled
		return result, nil
	}

	var expired ExpireEnvelopeOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyExpireEnvelope),
		(*Activities).ExpireEnvelopeActivity, ExpireEnvelopeInput{EnvelopeID: input.EnvelopeID}).Get(ctx, &expired); err != nil {
		return EnvelopeExpiryResult{}, err
	}
	if expired.Expired {
		result.Outcome = ExpiryOutcomeExpired
	} else {
		result.Outcome = ExpiryOutcomeSettled
	}
	logger.Info("envelope expiry finished", "envelope_id", input.EnvelopeID, "outcome", result.Outcome)
	return result, nil
}
