package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"golang-bank-reconciliation/cmd/reconciler/config"
)

func newValidateCommand(a *app) *cobra.Command {
	inputs := &inputFlags{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a bank/expected pair can be ingested",
		Long: `Validate parses and normalizes both inputs with the client's settings and
prints what was found. Nothing is matched and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, req, err := inputs.request("", config.Overrides{})
			if err != nil {
				return err
			}

			service, err := a.service()
			if err != nil {
				return err
			}
			report, err := service.Validate(context.Background(), req, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "client: %s\n", cfg.Client)
			fmt.Fprintf(out, "bank records: %d\n", report.Dataset.BankRecords)
			fmt.Fprintf(out, "expected records: %d\n", report.Dataset.ExpectedRecords)
			fmt.Fprintf(out, "currencies: %s\n", strings.Join(report.Dataset.Currencies, ", "))
			fmt.Fprintf(out, "blocked bank records: %d\n", report.Dataset.BlockedBankRecords)
			fmt.Fprintf(out, "records below field confidence: %d\n", report.Dataset.LowConfidenceRecords)
			fmt.Fprintln(out, "inputs are valid")
			return nil
		},
	}

	inputs.register(cmd)
	return cmd
}
