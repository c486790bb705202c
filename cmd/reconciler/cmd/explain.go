package cmd

import (
	"github.com/spf13/cobra"

	"golang-bank-reconciliation/internal/canonical"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/pkg/errors"
)

func newExplainCommand() *cobra.Command {
	var runDir string

	cmd := &cobra.Command{
		Use:   "explain ID",
		Short: "Print a match or finding from a finished run",
		Long: `Explain reads run.json from a run directory, accepting any artifact that
shares this build's schema major version, and prints the match (M-...) or
finding (H-...) with the given id as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := reconciler.Explain(runDir, args[0])
			if err != nil {
				return err
			}
			data, err := canonical.MarshalLine(item)
			if err != nil {
				return errors.InternalError(errors.CodeUnexpectedError, "encode_explanation", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&runDir, "run-dir", "", "directory holding run.json (required)")
	_ = cmd.MarkFlagRequired("run-dir")
	return cmd
}
