package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"casegate/internal/compliance"
	"casegate/internal/domain"
)

var caseFlags struct {
	target string
}

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Inspect and reconcile case blockers",
}

var caseCheckCmd = &cobra.Command{
	Use:   "check <case-id>",
	Short: "Evaluate a case, or ask whether it may advance with --target",
	Args:  cobra.ExactArgs(1),
	RunE:  checkCase,
}

var caseSyncCmd = &cobra.Command{
	Use:   "sync <case-id>",
	Short: "Reconcile persisted blockers for a case",
	Args:  cobra.ExactArgs(1),
	RunE:  syncCase,
}

var caseSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reconcile every case that is not closed",
	Args:  cobra.NoArgs,
	RunE:  sweepCases,
}

func init() {
	rootCmd.AddCommand(caseCmd)
	caseCmd.AddCommand(caseCheckCmd, caseSyncCmd, caseSweepCmd)
	caseCheckCmd.Flags().StringVar(&caseFlags.target, "target", "", "stage to check advancement into")
}

func checkCase(cmd *cobra.Command, args []string) error {
	caseID := args[0]
	return withStore(cmd, func(ctx context.Context, store ctlStore) error {
		engine := compliance.NewEngine(store, nil, nil)
		if caseFlags.target != "" {
			res, err := compliance.NewGate(store, engine, nil).CanAdvance(ctx, caseID, domain.Stage(caseFlags.target))
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			verdict := "allowed"
			if !res.Allowed {
				verdict = "blocked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "advance %s to %s: %s\n", caseID, res.Target, verdict)
			printCandidates(cmd, res.Blockers)
			return nil
		}

		snap, err := store.LoadSnapshot(ctx, caseID)
		if err != nil {
			return err
		}
		candidates, err := engine.Evaluate(ctx, snap.OrganizationID, snap)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), candidates)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "case %s at %s: %d violation(s)\n", caseID, snap.Stage, len(candidates))
		printCandidates(cmd, candidates)
		return nil
	})
}

func printCandidates(cmd *cobra.Command, candidates []domain.BlockerCandidate) {
	for _, c := range candidates {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s: %s\n", c.Severity, c.RuleID, c.Message)
	}
}

func syncCase(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store ctlStore) error {
		engine := compliance.NewEngine(store, nil, nil)
		res, err := compliance.NewReconciler(store, engine, store, nil, nil).Sync(ctx, args[0])
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "case %s: %d created, %d resolved, %d open\n", res.CaseID, len(res.Created), len(res.Resolved), res.Open)
		return nil
	})
}

func sweepCases(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(ctx context.Context, store ctlStore) error {
		engine := compliance.NewEngine(store, nil, nil)
		reconciler := compliance.NewReconciler(store, engine, store, nil, nil)
		n, err := compliance.NewSweeper(store, reconciler, "", nil).RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d case(s)\n", n)
		return nil
	})
}
