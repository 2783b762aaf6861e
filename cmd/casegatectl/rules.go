package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"casegate/internal/ruleset"
)

var rulesFlags struct {
	org    string
	strict bool
	dryRun bool
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage organization compliance rules",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint <file.yaml>",
	Short: "Check a rule set file without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE:  lintRules,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Upsert every rule in a rule set file",
	Args:  cobra.ExactArgs(1),
	RunE:  importRules,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules configured for an organization",
	Args:  cobra.NoArgs,
	RunE:  listRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd, rulesImportCmd, rulesListCmd)

	rulesLintCmd.Flags().BoolVar(&rulesFlags.strict, "strict", false, "fail when any rule has a problem")
	rulesImportCmd.Flags().BoolVar(&rulesFlags.strict, "strict", false, "refuse to import when any rule has a problem")
	rulesImportCmd.Flags().BoolVar(&rulesFlags.dryRun, "dry-run", false, "validate only")
	rulesListCmd.Flags().StringVar(&rulesFlags.org, "org", "", "organization id")
	_ = rulesListCmd.MarkFlagRequired("org")
}

func loadAndReport(cmd *cobra.Command, path string) (ruleset.RuleSet, error) {
	set, err := ruleset.LoadFile(path)
	if err != nil {
		return ruleset.RuleSet{}, err
	}
	problems := set.Validate()
	for _, p := range problems {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", p)
	}
	if rulesFlags.strict && len(problems) > 0 {
		return ruleset.RuleSet{}, fmt.Errorf("%s: %d rule problem(s)", path, len(problems))
	}
	return set, nil
}

func lintRules(cmd *cobra.Command, args []string) error {
	set, err := loadAndReport(cmd, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rule(s) for %s\n", args[0], len(set.Rules), set.OrganizationID)
	return nil
}

func importRules(cmd *cobra.Command, args []string) error {
	set, err := loadAndReport(cmd, args[0])
	if err != nil {
		return err
	}
	if rulesFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "would import %d rule(s) for %s\n", len(set.Rules), set.OrganizationID)
		return nil
	}
	return withStore(cmd, func(ctx context.Context, store ctlStore) error {
		n, err := ruleset.Import(ctx, store, set)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d rule(s) for %s\n", n, set.OrganizationID)
		return nil
	})
}

func listRules(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(ctx context.Context, store ctlStore) error {
		rules, err := store.ListRules(ctx, rulesFlags.org)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), rules)
		}
		for _, r := range rules {
			state := "active"
			if !r.IsActive {
				state = "inactive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s %-8s %-8s %s when %s\n", r.ID, r.Severity, state, r.RequirementType, r.ConditionType)
		}
		return nil
	})
}
