package cmd

import (
	"github.com/spf13/cobra"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/reconciler"
)

// inputFlags are the flags shared by commands that ingest a bank/expected pair
type inputFlags struct {
	configPath    string
	bankPath      string
	expectedPath  string
	enableOCR     bool
	maxInputBytes int64
	maxRows       int
	maxCells      int
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "client configuration file, YAML or JSON (required)")
	cmd.Flags().StringVar(&f.bankPath, "bank", "", "bank statement CSV (required)")
	cmd.Flags().StringVar(&f.expectedPath, "expected", "", "expected movements CSV (required)")
	cmd.Flags().BoolVar(&f.enableOCR, "enable-ocr", false, "accept scanned inputs for this run")
	cmd.Flags().Int64Var(&f.maxInputBytes, "max-input-bytes", 0, "override ingestion_limits.max_input_bytes")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "override ingestion_limits.max_rows")
	cmd.Flags().IntVar(&f.maxCells, "max-cells", 0, "override ingestion_limits.max_cells")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("bank")
	_ = cmd.MarkFlagRequired("expected")
}

// request loads the client configuration and applies the flags on top
func (f *inputFlags) request(outDir string, overrides config.Overrides) (*config.ClientConfig, *reconciler.Request, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}

	overrides.EnableOCR = f.enableOCR
	overrides.MaxInputBytes = f.maxInputBytes
	overrides.MaxRows = f.maxRows
	overrides.MaxCells = f.maxCells

	req := cfg.CreateRequest(f.configPath, f.bankPath, f.expectedPath, outDir, overrides)
	if err := req.Limits.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, req, nil
}
