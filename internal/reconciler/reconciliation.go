// Package reconciler runs the reconciliation pipeline end to end.
//
// A run hashes its inputs into a fingerprint, derives the run ID from it,
// ingests and normalizes both sides, hands the records to the matching
// engine and writes the validated run artifact together with the audit
// stream (and, unless it is a dry run, a CSV report) into the output
// directory.
//
// Example usage:
//
//	service, err := reconciler.NewReconciliationService(reconciler.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	outcome, err := service.Run(ctx, &reconciler.Request{
//		ConfigPath:   "client_config.yaml",
//		BankPath:     "bank.csv",
//		ExpectedPath: "expected.csv",
//		OutDir:       "out",
//		Mask:         true,
//	})
package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/contract"
	"golang-bank-reconciliation/internal/extension"
	"golang-bank-reconciliation/internal/identity"
	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/parsers"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// File names inside an output directory
const (
	AuditFileName  = "audit.jsonl"
	ReportFileName = "report.csv"
)

// Config holds the settings of the service itself, shared by every run
type Config struct {
	SoftwareVersion string
	// Plugin is the optional extension; nil means extension.Absent
	Plugin extension.Plugin
	// Report configures report.csv; its Mask flag is overridden per run
	Report *reporter.ReportConfig
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	report := reporter.DefaultReportConfig()
	report.Format = reporter.FormatCSV
	return &Config{
		SoftwareVersion: "dev",
		Plugin:          extension.Absent{},
		Report:          report,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SoftwareVersion) == "" {
		return fmt.Errorf("software version cannot be empty")
	}
	if c.Report != nil {
		if err := c.Report.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Request describes one run over a bank/expected pair
type Request struct {
	ConfigPath   string
	BankPath     string
	ExpectedPath string
	OutDir       string
	Client       string

	Matching        *matcher.MatchingConfig
	DefaultCurrency string
	AllowOCR        bool
	Limits          parsers.Limits

	Mask   bool
	DryRun bool
}

// Validate checks that the request names every input it needs
func (r *Request) Validate(needOutput bool) error {
	missing := make([]string, 0)
	if r.ConfigPath == "" {
		missing = append(missing, "config")
	}
	if r.BankPath == "" {
		missing = append(missing, "bank")
	}
	if r.ExpectedPath == "" {
		missing = append(missing, "expected")
	}
	if needOutput && r.OutDir == "" {
		missing = append(missing, "out")
	}
	if len(missing) > 0 {
		return errors.UserInputError(errors.CodeInvalidArgument,
			fmt.Sprintf("missing required inputs: %s", strings.Join(missing, ", ")), nil).
			WithContext("missing", missing)
	}
	if r.Matching != nil {
		if err := r.Matching.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", r.Matching.String(), err)
		}
	}
	if r.Limits != (parsers.Limits{}) {
		if err := r.Limits.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Outcome reports what a run produced
type Outcome struct {
	RunID        string
	Fingerprint  identity.Fingerprint
	Result       *models.Result
	ArtifactPath string
	AuditPath    string
	// ReportPath is empty for dry runs
	ReportPath    string
	BankStats     *parsers.ParseStats
	ExpectedStats *parsers.ParseStats
	Dataset       *DatasetStats
	AuditFailures int
}

// ReconciliationService orchestrates the complete reconciliation process
type ReconciliationService struct {
	config       *Config
	preprocessor *DataPreprocessor
	logger       logger.Logger

	// Progress tracking
	progressCallbacks []ProgressCallback
	current           *ReconciliationProgress
	progressMutex     sync.Mutex
}

// NewReconciliationService creates a service. A nil config uses DefaultConfig.
func NewReconciliationService(config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config.SoftwareVersion, err)
	}
	if config.Plugin == nil {
		config.Plugin = extension.Absent{}
	}
	if config.Report == nil {
		config.Report = DefaultConfig().Report
	}

	return &ReconciliationService{
		config:       config,
		preprocessor: NewDataPreprocessor(),
		logger:       logger.GetGlobalLogger().WithComponent("reconciler"),
	}, nil
}

// Run performs a full reconciliation run
func (rs *ReconciliationService) Run(ctx context.Context, req *Request) (*Outcome, error) {
	if err := req.Validate(true); err != nil {
		return nil, err
	}
	matching := req.Matching
	if matching == nil {
		matching = matcher.DefaultMatchingConfig()
	}

	log := rs.logger.WithFields(logger.Fields{
		"client":        req.Client,
		"bank_file":     req.BankPath,
		"expected_file": req.ExpectedPath,
	})
	log.Info("Starting reconciliation run")

	rs.progress(StepHashing)
	fp, err := rs.fingerprint(req)
	if err != nil {
		return nil, err
	}
	runID, err := identity.RunID(fp)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "run_id", err)
	}
	log = log.WithField("run_id", runID)

	outcome := &Outcome{
		RunID:        runID,
		Fingerprint:  fp,
		ArtifactPath: filepath.Join(req.OutDir, contract.FileName),
		AuditPath:    filepath.Join(req.OutDir, AuditFileName),
	}

	writer, err := audit.OpenJSONL(outcome.AuditPath)
	if err != nil {
		return nil, errors.IOError(errors.CodeWriteFailed, outcome.AuditPath, err)
	}
	writer.SetRunID(runID)
	recorder := audit.NewBestEffort(writer, log)
	defer func() { outcome.AuditFailures = recorder.Failures() }()

	recorder.Record(audit.EventRunStarted, "reconciliation run started", map[string]interface{}{
		"client":        req.Client,
		"bank_file":     req.BankPath,
		"expected_file": req.ExpectedPath,
		"dry_run":       req.DryRun,
		"mask":          req.Mask,
	})
	recorder.Record(audit.EventInputsHashed, "inputs hashed", map[string]interface{}{
		"config_hash":   fp.ConfigHash,
		"bank_hash":     fp.BankHash,
		"expected_hash": fp.ExpectedHash,
	})

	rules := rs.consultExtension(recorder)

	bank, expected, err := rs.ingest(ctx, req, recorder, rules, outcome)
	if err != nil {
		return nil, err
	}

	rs.progress(StepNormalizing)
	bank, expected, dataset, err := rs.preprocessor.Preprocess(bank, expected, matching.MinFieldConfidence)
	if err != nil {
		return nil, err
	}
	outcome.Dataset = dataset
	recorder.Record(audit.EventNormalized, "records normalized", dataset.AsMap())

	rs.progress(StepMatching)
	engine, err := matcher.NewMatchingEngine(matching, recorder)
	if err != nil {
		return nil, err
	}
	result, err := engine.Reconcile(runID, bank, expected)
	if err != nil {
		return nil, err
	}
	outcome.Result = result

	rs.progress(StepWriting)
	if err := rs.writeArtifact(result, fp, outcome.ArtifactPath, recorder); err != nil {
		return nil, err
	}

	if !req.DryRun {
		outcome.ReportPath = filepath.Join(req.OutDir, ReportFileName)
		if err := rs.writeReport(result, req.Mask, outcome.ReportPath, recorder); err != nil {
			return nil, err
		}
	}

	summary := result.Summary()
	recorder.Record(audit.EventRunCompleted, "reconciliation run completed", map[string]interface{}{
		"matches":           len(result.Matches()),
		"findings":          len(result.Findings()),
		"blocked_matches":   summary.BlockedMatches,
		"critical_findings": summary.CriticalFindings,
		"dry_run":           req.DryRun,
	})
	rs.progress(StepDone)

	log.WithFields(logger.Fields{
		"matches":  len(result.Matches()),
		"findings": len(result.Findings()),
	}).Info("Reconciliation run completed")
	return outcome, nil
}

// GetConfiguration returns the service configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}
