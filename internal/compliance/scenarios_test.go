package compliance

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"casegate/internal/domain"
)

var _ = Describe("Stage advancement gated by blockers", func() {
	var (
		ctx        context.Context
		store      *fakeStore
		gate       *Gate
		reconciler *Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newFakeStore()
		store.rules = []domain.ComplianceRule{gplRule()}
		store.putSnapshot(domain.CaseSnapshot{
			CaseID:         "case-1",
			OrganizationID: "org-1",
			Stage:          domain.StageIntake,
			Disposition:    domain.DispositionBurial,
		})
		engine := NewEngine(store, nil, nil)
		gate = NewGate(store, engine, nil)
		reconciler = NewReconciler(store, engine, store, nil, nil)
	})

	It("denies advancing to documents until a GPL exists", func() {
		By("checking the gate for an intake case without documents")
		res, err := gate.CanAdvance(ctx, "case-1", domain.StageDocuments)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Allowed).To(BeFalse())
		Expect(res.Blockers).To(HaveLen(1))
		Expect(res.Blockers[0].RuleID).To(Equal("rule-gpl"))
		Expect(*res.Blockers[0].FixAction).To(Equal("Generate General Price List document"))

		By("moving the case to documents and syncing")
		store.update("case-1", func(s *domain.CaseSnapshot) { s.Stage = domain.StageDocuments })
		synced, err := reconciler.Sync(ctx, "case-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(synced.Created).To(HaveLen(1))

		By("generating the GPL and syncing again")
		store.update("case-1", func(s *domain.CaseSnapshot) {
			s.Documents = append(s.Documents, domain.SnapshotDocument{ID: "gpl-1", Tag: domain.TagGeneralPriceList, Status: domain.DocumentGenerated})
		})
		synced, err = reconciler.Sync(ctx, "case-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(synced.Resolved).To(HaveLen(1))
		Expect(store.openRuleIDs("case-1")).To(BeEmpty())

		res, err = gate.CanAdvance(ctx, "case-1", domain.StageDocuments)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Allowed).To(BeTrue())
		Expect(res.Blockers).To(BeEmpty())
	})

	It("never surfaces inactive rules", func() {
		off := domain.ComplianceRule{
			ID: "rule-off", OrganizationID: "org-1", Name: "Disabled",
			ConditionType: domain.ConditionAlways, RequirementType: domain.RequirementDocumentExists,
			RequirementTag: domain.TagDeathCertificate, Severity: domain.SeverityBlocker, IsActive: false,
		}
		store.rules = append(store.rules, off)

		for _, stage := range domain.Stages {
			res, err := gate.CanAdvance(ctx, "case-1", stage)
			Expect(err).ToNot(HaveOccurred())
			for _, b := range res.Blockers {
				Expect(b.RuleID).ToNot(Equal("rule-off"))
			}
		}

		_, err := reconciler.Sync(ctx, "case-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.openRuleIDs("case-1")).ToNot(ContainElement("rule-off"))
	})
})
