package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
)

// Flags for the run command
type runFlags struct {
	inputFlags
	outDir       string
	mask         bool
	noMask       bool
	dryRun       bool
	format       string
	showProgress bool
}

func newRunCommand(a *app) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"reconcile"},
		Short:   "Reconcile a bank statement against expected movements",
		Long: `Run ingests both inputs, applies the matching cascade and writes the run
directory: run.json (validated before it is written), audit.jsonl and, unless
--dry-run is given, report.csv. A summary is printed to stdout.

Examples:
  # Basic run
  reconciler run --config client_config.yaml --bank bank.csv --expected expected.csv --out runs/march

  # Show account numbers and RUTs in the report
  reconciler run --config client_config.yaml --bank bank.csv --expected expected.csv --out runs/march --no-mask

  # Only the artifact and the audit stream
  reconciler run --config client_config.yaml --bank bank.csv --expected expected.csv --out runs/march --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := flags.validate()
			if err == nil {
				err = flags.run(cmd, a)
			}
			if err != nil && flags.outDir != "" {
				recordCLIError(filepath.Join(flags.outDir, reconciler.AuditFileName), cmd.Name(), err)
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.outDir, "out", "", "run directory to write into (required)")
	cmd.Flags().BoolVar(&flags.mask, "mask", false, "mask RUTs and account numbers in the report")
	cmd.Flags().BoolVar(&flags.noMask, "no-mask", false, "show RUTs and account numbers in the report")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "skip report.csv")
	cmd.Flags().StringVarP(&flags.format, "format", "f", string(reporter.FormatConsole), "summary format on stdout: console, json, csv")
	cmd.Flags().BoolVar(&flags.showProgress, "progress", false, "show progress on stderr")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func (f *runFlags) validate() error {
	if f.mask && f.noMask {
		return errors.UserInputError(errors.CodeFlagConflict, "--mask and --no-mask cannot be used together", nil).
			WithContext("flags", []string{"--mask", "--no-mask"})
	}
	if !reporter.OutputFormat(f.format).IsValid() {
		return errors.UserInputError(errors.CodeInvalidArgument,
			fmt.Sprintf("invalid output format %q: valid formats are console, json, csv", f.format), nil)
	}
	return nil
}

// maskOverride returns nil when neither flag was given
func (f *runFlags) maskOverride() *bool {
	switch {
	case f.mask:
		return &f.mask
	case f.noMask:
		mask := false
		return &mask
	}
	return nil
}

func (f *runFlags) run(cmd *cobra.Command, a *app) error {
	_, req, err := f.request(f.outDir, config.Overrides{
		Mask:   f.maskOverride(),
		DryRun: f.dryRun,
	})
	if err != nil {
		return err
	}

	service, err := a.service()
	if err != nil {
		return err
	}
	if f.showProgress {
		errOut := cmd.ErrOrStderr()
		service.AddProgressCallback(func(progress *reconciler.ReconciliationProgress) {
			fmt.Fprintf(errOut, "[%d/%d] %s (%.1f%% complete)\n",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	outcome, err := service.Run(context.Background(), req)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(f.format, req.Mask)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", f.format, err)
	}

	out := cmd.OutOrStdout()
	if err := generator.GenerateReport(outcome.Result, out); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "render_summary", err)
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "run %s written to %s\n", outcome.RunID, req.OutDir)
	if outcome.ReportPath == "" {
		fmt.Fprintln(errOut, "dry run: report.csv not written")
	}
	if outcome.AuditFailures > 0 {
		fmt.Fprintf(errOut, "warning: %d audit event(s) could not be recorded\n", outcome.AuditFailures)
	}
	return nil
}

// service builds the reconciliation service for this build
func (a *app) service() (*reconciler.ReconciliationService, error) {
	return reconciler.NewReconciliationService(config.CreateReconcilerConfig(version))
}
