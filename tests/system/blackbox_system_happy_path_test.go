//go:build system

package system_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"casegate/internal/domain"
	"casegate/internal/ruleset"
	"casegate/internal/signature"
	"casegate/internal/storage"
	appTemporal "casegate/internal/temporal"
	"casegate/internal/webhook"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var (
		repoRoot string
		cfg      systemTestConfig
		store    *storage.PostgresStore
		api      *apiClient
		orgID    string
	)

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIHealthPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIReadyPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())

		By("seeding the organization rule set")
		store, err = storage.NewPostgresStore(cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(store.Close)
		Expect(store.Migrate(context.Background())).To(Succeed())

		set, err := ruleset.LoadFile(filepath.Join(repoRoot, cfg.RulesFile))
		Expect(err).ToNot(HaveOccurred())
		Expect(set.Validate()).To(BeEmpty())
		n, err := ruleset.Import(context.Background(), store, set)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(set.Rules)))
		orgID = set.OrganizationID

		api = newAPIClient(cfg.APIBaseURL)
	})

	newCremationCase := func() string {
		caseID := "sys-" + uuid.NewString()
		Expect(store.CreateCase(context.Background(), domain.Case{
			ID:             caseID,
			OrganizationID: orgID,
			Stage:          domain.StageDocuments,
			Disposition:    domain.DispositionCremation,
			Fields:         map[string]any{},
		})).To(Succeed())
		Expect(api.syncCase(caseID)).To(Succeed())
		return caseID
	}

	It("resolves blockers when a family member signs through the hosted link", func() {
		caseID := newCremationCase()

		open, err := api.blockers(caseID, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(openRuleIDs(open)).To(ContainElements("gpl-provided", "cremation-authorization"))

		By("adding the price list and the cremation authorization")
		_, err = api.createDocument(caseID, domain.TagGeneralPriceList)
		Expect(err).ToNot(HaveOccurred())
		auth, err := api.createDocument(caseID, domain.TagCremationAuthorization)
		Expect(err).ToNot(HaveOccurred())
		Expect(auth.Name).To(Equal("Cremation Authorization"))

		By("sending the authorization for signature")
		req, err := api.requestSignature(auth.ID, signature.SignerInput{Name: "Alex Family", Email: "alex@example.com"})
		Expect(err).ToNot(HaveOccurred())
		Expect(req.Envelope.Status).To(Equal(domain.EnvelopeSent))
		Expect(req.Envelope.Signers).To(HaveLen(1))
		Expect(req.Document.Status).To(Equal(domain.DocumentSentForSignature))

		By("signing as the only signer")
		env, err := api.sign(req.Envelope.ID, req.Envelope.Signers[0].ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(env.Status).To(Equal(domain.EnvelopeCompleted))

		open, err = api.blockers(caseID, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(openRuleIDs(open)).ToNot(ContainElement("gpl-provided"))
		Expect(openRuleIDs(open)).ToNot(ContainElement("cremation-authorization"))

		all, err := api.blockers(caseID, true)
		Expect(err).ToNot(HaveOccurred())
		resolved := make([]string, 0, len(all))
		for _, b := range all {
			if b.Resolved {
				Expect(b.ResolvedAt).ToNot(BeNil())
				resolved = append(resolved, b.RuleID)
			}
		}
		Expect(resolved).To(ContainElements("gpl-provided", "cremation-authorization"))

		current, err := api.getCase(caseID)
		Expect(err).ToNot(HaveOccurred())
		Expect(current.Documents).To(ContainElement(HaveField("Status", domain.DocumentSigned)))

		By("checking the envelope expiry workflow was told the envelope settled")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		expiryID := cfg.WorkflowIDPrefix + "-expiry-" + req.Envelope.ID
		signals, err := collectWorkflowSignalNames(context.Background(), temporalClient, expiryID)
		Expect(err).ToNot(HaveOccurred())
		Expect(signals).To(ContainElement(appTemporal.EnvelopeSettledSignalName))
	})

	It("applies a vendor webhook through the document-sync workflow on a real worker", func() {
		caseID := newCremationCase()

		auth, err := api.createDocument(caseID, domain.TagCremationAuthorization)
		Expect(err).ToNot(HaveOccurred())
		req, err := api.requestSignature(auth.ID, signature.SignerInput{Name: "Sam Family", Email: "sam@example.com"})
		Expect(err).ToNot(HaveOccurred())

		By("posting a signed envelope.completed notification")
		ev := webhook.Event{
			ID:             "sys-evt-" + uuid.NewString(),
			Type:           webhook.EnvelopeCompleted,
			EnvelopeID:     req.Envelope.ID,
			DocumentID:     auth.ID,
			EnvelopeStatus: domain.EnvelopeCompleted,
			OccurredAt:     time.Now().UTC(),
		}
		ack, err := api.postSignedWebhook(cfg.WebhookSecret, ev)
		Expect(err).ToNot(HaveOccurred())
		Expect(ack.EventID).To(Equal(ev.ID))
		Expect(ack.Status).To(Equal("accepted"))

		By("redelivering the same notification")
		ack, err = api.postSignedWebhook(cfg.WebhookSecret, ev)
		Expect(err).ToNot(HaveOccurred())
		Expect(ack.Status).To(Equal("duplicate"))

		By("polling blockers until the worker resolves the authorization")
		Eventually(func() []string {
			open, listErr := api.blockers(caseID, false)
			Expect(listErr).ToNot(HaveOccurred())
			return openRuleIDs(open)
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).ShouldNot(ContainElement("cremation-authorization"))

		doc, err := store.GetDocument(context.Background(), auth.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(doc.Status).To(Equal(domain.DocumentSigned))

		By("validating activity inputs and outputs from Temporal workflow history")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		workflowID := cfg.WorkflowIDPrefix + "-event-" + ev.ID
		var trace activityTrace
		Eventually(func() []string {
			var traceErr error
			trace, traceErr = collectActivityTrace(context.Background(), temporalClient, workflowID)
			Expect(traceErr).ToNot(HaveOccurred())
			return trace.CompletedOrder
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(cfg.ExpectedActivityOrder))
		Expect(trace.ScheduledOrder).To(Equal(cfg.ExpectedActivityOrder))

		applyIn := trace.Inputs["ApplyEventActivity"].(webhook.Event)
		Expect(applyIn.ID).To(Equal(ev.ID))
		Expect(applyIn.EnvelopeID).To(Equal(req.Envelope.ID))

		applyOut := trace.Outputs["ApplyEventActivity"].(appTemporal.ApplyEventOutput)
		Expect(applyOut.CaseID).To(Equal(caseID))

		syncIn := trace.Inputs["SyncBlockersActivity"].(appTemporal.SyncBlockersInput)
		Expect(syncIn.CaseID).To(Equal(caseID))

		syncOut := trace.Outputs["SyncBlockersActivity"].(appTemporal.SyncBlockersOutput)
		Expect(syncOut.Resolved).To(ContainElement("cremation-authorization"))
	})
})
