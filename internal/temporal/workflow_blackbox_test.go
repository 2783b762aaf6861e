package temporal

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"casegate/internal/compliance"
	"casegate/internal/domain"
	"casegate/internal/signature"
	"casegate/internal/storage"
	"casegate/internal/webhook"
)

type activityTrace struct {
	mu             sync.Mutex
	startedOrder   []string
	completedOrder []string
	syncIn         *SyncBlockersInput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("Document sync against the real stores", func() {
	var (
		ctx        context.Context
		store      *storage.MemoryStore
		reconciler *compliance.Reconciler
		provider   *signature.Simulator
		env        *testsuite.TestWorkflowEnvironment
		trace      *activityTrace
	)

	openRules := func() []string {
		open, err := store.ListUnresolvedBlockers(ctx, "case-1")
		Expect(err).ToNot(HaveOccurred())
		ids := make([]string, 0, len(open))
		for _, b := range open {
			ids = append(ids, b.RuleID)
		}
		return ids
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewMemoryStore()
		Expect(store.UpsertRule(ctx, domain.ComplianceRule{
			ID:              "rule-cremation-auth",
			OrganizationID:  "org-1",
			Name:            "Cremation authorization signed",
			ConditionType:   domain.ConditionDispositionEquals,
			ConditionValue:  string(domain.DispositionCremation),
			RequirementType: domain.RequirementDocumentSigned,
			RequirementTag:  domain.TagCremationAuthorization,
			RequiresSigned:  true,
			Severity:        domain.SeverityBlocker,
			IsActive:        true,
		})).To(Succeed())
		Expect(store.CreateCase(ctx, domain.Case{
			ID:             "case-1",
			OrganizationID: "org-1",
			Stage:          domain.StageSignatures,
			Disposition:    domain.DispositionCremation,
		})).To(Succeed())
		Expect(store.CreateDocument(ctx, domain.Document{
			ID:     "doc-1",
			CaseID: "case-1",
			Name:   "Cremation Authorization",
			Tag:    domain.TagCremationAuthorization,
			Status: domain.DocumentGenerated,
		})).To(Succeed())

		engine := compliance.NewEngine(store, nil, nil)
		reconciler = compliance.NewReconciler(store, engine, store, nil, nil)
		_, err := reconciler.Sync(ctx, "case-1")
		Expect(err).ToNot(HaveOccurred())

		// events stay off the bus so the workflow is the only writer
		provider = signature.NewSimulator(signature.NewMemoryStore(), webhook.NewBus(nil, nil), signature.NewURLSigner("https://sign.test", "secret", time.Hour), nil)

		acts := &Activities{
			Events:    webhook.NewIngestor(store, reconciler, nil),
			Documents: store,
			Blockers:  reconciler,
			Envelopes: provider,
		}

		trace = &activityTrace{}
		var suite testsuite.WorkflowTestSuite
		env = suite.NewTestWorkflowEnvironment()
		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)
			if info.ActivityType.Name == "SyncBlockersActivity" {
				var in SyncBlockersInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.syncIn = &in
				trace.mu.Unlock()
			}
		})
		env.SetOnActivityCompletedListener(func(info *activity.Info, _ converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)
		})
		env.RegisterWorkflow(DocumentSyncWorkflow)
		env.RegisterWorkflow(EnvelopeExpiryWorkflow)
		env.RegisterActivity(acts.ApplyEventActivity)
		env.RegisterActivity(acts.RecordSignedCopyActivity)
		env.RegisterActivity(acts.SyncBlockersActivity)
		env.RegisterActivity(acts.ExpireEnvelopeActivity)
	})

	It("resolves the blocker when a completed envelope event is ingested", func() {
		Expect(openRules()).To(ConsistOf("rule-cremation-auth"))

		By("running the workflow for a vendor completion event")
		env.ExecuteWorkflow(DocumentSyncWorkflow, DocumentSyncInput{Event: &webhook.Event{
			ID:             "evt-vendor-1",
			Type:           webhook.EnvelopeCompleted,
			EnvelopeID:     "env-vendor-1",
			DocumentID:     "doc-1",
			EnvelopeStatus: domain.EnvelopeCompleted,
			OccurredAt:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		}})

		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result DocumentSyncResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.CaseID).To(Equal("case-1"))
		Expect(result.Resolved).To(ConsistOf("rule-cremation-auth"))
		Expect(result.Open).To(Equal(0))

		Expect(trace.startedOrder).To(Equal([]string{"ApplyEventActivity", "SyncBlockersActivity"}))
		Expect(trace.completedOrder).To(Equal(trace.startedOrder))
		Expect(trace.syncIn).ToNot(BeNil())
		Expect(trace.syncIn.CaseID).To(Equal("case-1"))

		By("checking persisted side effects")
		Expect(openRules()).To(BeEmpty())
		doc, err := store.GetDocument(ctx, "doc-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.Status).To(Equal(domain.DocumentSigned))
		Expect(doc.EnvelopeID).ToNot(BeNil())
		Expect(*doc.EnvelopeID).To(Equal("env-vendor-1"))

		req, err := store.GetSignatureRequest(ctx, "env-vendor-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(req.Status).To(Equal(domain.EnvelopeCompleted))
	})

	It("resolves the blocker when a signed copy is uploaded by hand", func() {
		env.ExecuteWorkflow(DocumentSyncWorkflow, DocumentSyncInput{SignedCopy: &SignedCopyInput{
			DocumentID: "doc-1",
			Filename:   "cremation-signed.pdf",
			ObjectKey:  "doc-1/cremation-signed.pdf",
		}})

		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())
		Expect(trace.startedOrder).To(Equal([]string{"RecordSignedCopyActivity", "SyncBlockersActivity"}))
		Expect(openRules()).To(BeEmpty())

		doc, err := store.GetDocument(ctx, "doc-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.ObjectKey).To(Equal("doc-1/cremation-signed.pdf"))
	})

	It("expires an envelope nobody acted on", func() {
		envelope, err := provider.CreateEnvelope(ctx, "doc-1", "Cremation Authorization", []signature.SignerInput{
			{Name: "Alex Family", Email: "alex@example.com"},
		})
		Expect(err).ToNot(HaveOccurred())

		env.ExecuteWorkflow(EnvelopeExpiryWorkflow, EnvelopeExpiryInput{
			EnvelopeID:   envelope.ID,
			DocumentID:   "doc-1",
			ExpiresAfter: 30 * 24 * time.Hour,
		})

		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())
		var result EnvelopeExpiryResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.Outcome).To(Equal(ExpiryOutcomeExpired))

		got, err := provider.GetEnvelope(ctx, envelope.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Status).To(Equal(domain.EnvelopeExpired))
	})
})
