package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"casegate/internal/webhook"
)

// WorkflowStarter is the slice of client.Client the dispatchers need.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
}

// Dispatcher starts document-sync workflows. Workflow ids are derived from
// the triggering event so a redelivered event never runs twice.
type Dispatcher struct {
	client    WorkflowStarter
	taskQueue string
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewDispatcher(c WorkflowStarter, taskQueue, prefix string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    c,
		taskQueue: taskQueue,
		prefix:    prefix,
		timeout:   15 * time.Second,
		logger:    logger.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) EventWorkflowID(ev webhook.Event) string {
	return fmt.Sprintf("%s-event-%s", d.prefix, ev.ID)
}

func (d *Dispatcher) SignedCopyWorkflowID(in SignedCopyInput) string {
	return fmt.Sprintf("%s-copy-%s", d.prefix, in.ObjectKey)
}

// DispatchEvent starts a document-sync workflow for one webhook event.
// It reports started=false when the event was already dispatched.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev webhook.Event) (bool, error) {
	return d.start(ctx, d.EventWorkflowID(ev), DocumentSyncInput{Event: &ev})
}

func (d *Dispatcher) DispatchSignedCopy(ctx context.Context, in SignedCopyInput) (bool, error) {
	return d.start(ctx, d.SignedCopyWorkflowID(in), DocumentSyncInput{SignedCopy: &in})
}

func (d *Dispatcher) start(ctx context.Context, workflowID string, input DocumentSyncInput) (bool, error) {
	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.client.ExecuteWorkflow(execCtx, client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                d.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, DocumentSyncWorkflowName, input)
	if err != nil {
		if alreadyStarted(err) {
			d.logger.Info("workflow already started", "workflow_id", workflowID)
			return false, nil
		}
		return false, fmt.Errorf("start workflow %s: %w", workflowID, err)
	}
	d.logger.Info("started workflow", "workflow_id", workflowID)
	return true, nil
}

// ExpiryScheduler is an event bus handler that starts an expiry workflow
// when an envelope is sent and signals it once the envelope settles.
type ExpiryScheduler struct {
	client    WorkflowStarter
	taskQueue string
	prefix    string
	expiry    time.Duration
	logger    *slog.Logger
}

func NewExpiryScheduler(c WorkflowStarter, taskQueue, prefix string, expiry time.Duration, logger *slog.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryScheduler{
		client:    c,
		taskQueue: taskQueue,
		prefix:    prefix,
		expiry:    expiry,
		logger:    logger.With("component", "expiry_scheduler"),
	}
}

func (s *ExpiryScheduler) WorkflowID(envelopeID string) string {
	return fmt.Sprintf("%s-expiry-%s", s.prefix, envelopeID)
}

func (s *ExpiryScheduler) HandleEvent(ctx context.Context, ev webhook.Event) error {
	switch {
	case ev.Type == webhook.EnvelopeSent:
		return s.schedule(ctx, ev)
	case ev.Type.Settles() && ev.Type != webhook.EnvelopeExpired:
		return s.settle(ctx, ev)
	default:
		return nil
	}
}

func (s *ExpiryScheduler) schedule(ctx context.Context, ev webhook.Event) error {
	workflowID := s.WorkflowID(ev.EnvelopeID)
	_, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                s.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, EnvelopeExpiryWorkflowName, EnvelopeExpiryInput{
		EnvelopeID:   ev.EnvelopeID,
		DocumentID:   ev.DocumentID,
		ExpiresAfter: s.expiry,
	})
	if err != nil {
		if alreadyStarted(err) {
			return nil
		}
		return fmt.Errorf("schedule expiry for envelope %s: %w", ev.EnvelopeID, err)
	}
	s.logger.Info("scheduled envelope expiry", "envelope_id", ev.EnvelopeID, "after", s.expiry.String())
	return nil
}

func (s *ExpiryScheduler) settle(ctx context.Context, ev webhook.Event) error {
	err := s.client.SignalWorkflow(ctx, s.WorkflowID(ev.EnvelopeID), "", EnvelopeSettledSignalName, EnvelopeSettledSignal{
		EventType: ev.Type,
		Status:    ev.EnvelopeStatus,
	})
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("signal expiry for envelope %s: %w", ev.EnvelopeID, err)
	}
	return nil
}

func alreadyStarted(err error) bool {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &started)
}
