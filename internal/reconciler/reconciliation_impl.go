package reconciler

import (
	"context"
	"io"
	"os"
	"sync"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/canonical"
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

// fingerprint hashes the three inputs of a run
func (rs *ReconciliationService) fingerprint(req *Request) (identity.Fingerprint, error) {
	hashes := make([]string, 3)
	for i, path := range []string{req.ConfigPath, req.BankPath, req.ExpectedPath} {
		sum, err := identity.HashFile(path)
		if err != nil {
			return identity.Fingerprint{}, hashError(path, err)
		}
		hashes[i] = sum
	}
	configHash, err := effectiveConfigHash(req, hashes[0])
	if err != nil {
		return identity.Fingerprint{}, errors.InternalError(errors.CodeUnexpectedError, "config_hash", err)
	}
	return identity.NewFingerprint(configHash, hashes[1], hashes[2], req.Mask, req.AllowOCR, rs.config.SoftwareVersion), nil
}

// effectiveConfigHash covers the configuration file and every setting the
// run actually uses, so overrides from the environment or flags change it.
func effectiveConfigHash(req *Request, fileHash string) (string, error) {
	matching := req.Matching
	if matching == nil {
		matching = matcher.DefaultMatchingConfig()
	}
	return canonical.SHA256Hex(map[string]interface{}{
		"file_sha256":      fileHash,
		"client":           req.Client,
		"matching":         matching.AsMap(),
		"default_currency": req.DefaultCurrency,
		"ingestion_limits": req.Limits,
	})
}

func hashError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.IOError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.IOError(errors.CodeFilePermission, path, err)
	default:
		return errors.IOError(errors.CodeReadFailed, path, err)
	}
}

// consultExtension records which plugin is installed and returns its bank rules
func (rs *ReconciliationService) consultExtension(recorder audit.Recorder) extension.BankRuleProvider {
	info := rs.config.Plugin.Info()
	rules := extension.BankRulesFor(rs.config.Plugin)

	supported := []string{}
	if rules != nil {
		supported = append(supported, rules.SupportedBanks()...)
	}
	recorder.Record(audit.EventExtensionConsulted, "extension consulted", map[string]interface{}{
		"plugin":          info.Name,
		"version":         info.Version,
		"bank_rules":      rules != nil,
		"supported_banks": supported,
	})
	return rules
}

func (rs *ReconciliationService) parserOptions(req *Request, recorder audit.Recorder, rules extension.BankRuleProvider) parsers.Options {
	return parsers.Options{
		DefaultCurrency: req.DefaultCurrency,
		AllowOCR:        req.AllowOCR,
		Limits:          req.Limits,
		Recorder:        recorder,
		BankRules:       rules,
	}
}

// ingest parses both inputs concurrently. When both sides fail the bank
// error is reported.
func (rs *ReconciliationService) ingest(ctx context.Context, req *Request, recorder audit.Recorder,
	rules extension.BankRuleProvider, outcome *Outcome) ([]models.BankRecord, []models.ExpectedRecord, error) {

	rs.progress(StepIngesting)
	options := rs.parserOptions(req, recorder, rules)

	var (
		wg                   sync.WaitGroup
		bank                 []models.BankRecord
		expected             []models.ExpectedRecord
		bankErr, expectedErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		bank, outcome.BankStats, bankErr = parsers.NewBankParser(nil, options).ParseFile(ctx, req.BankPath)
	}()
	go func() {
		defer wg.Done()
		expected, outcome.ExpectedStats, expectedErr = parsers.NewExpectedParser(nil, options).ParseFile(ctx, req.ExpectedPath)
	}()
	wg.Wait()

	if bankErr != nil {
		return nil, nil, bankErr
	}
	if expectedErr != nil {
		return nil, nil, expectedErr
	}

	recorder.Record(audit.EventIngestionCompleted, "inputs ingested", map[string]interface{}{
		"bank_records":       len(bank),
		"expected_records":   len(expected),
		"bank_rows_remapped": outcome.BankStats.Remapped,
		"bank_bytes":         outcome.BankStats.Bytes,
		"expected_bytes":     outcome.ExpectedStats.Bytes,
	})
	rs.logger.WithFields(logger.Fields{
		"bank_records":     len(bank),
		"expected_records": len(expected),
	}).Info("Inputs ingested")
	return bank, expected, nil
}

// writeArtifact validates the payload exactly as a producer must and writes run.json
func (rs *ReconciliationService) writeArtifact(result *models.Result, fp identity.Fingerprint, path string, recorder audit.Recorder) error {
	data, err := contract.Encode(contract.BuildPayload(result, fp))
	if err != nil {
		return err
	}
	if _, err := (contract.ProducerValidator{}).Validate(data); err != nil {
		return err
	}
	recorder.Record(audit.EventContractValidated, "run artifact validated", map[string]interface{}{
		"validator":      contract.ProducerValidator{}.Name(),
		"schema_version": identity.SchemaVersion,
	})

	if err := reporter.AtomicWrite(path, func(w io.Writer) error {
		_, werr := w.Write(data)
		return werr
	}); err != nil {
		return err
	}

	recorder.Record(audit.EventArtifactWritten, "run artifact written", map[string]interface{}{
		"path":   path,
		"sha256": identity.HashBytes(data),
		"bytes":  len(data),
	})
	return nil
}

// writeReport renders report.csv
func (rs *ReconciliationService) writeReport(result *models.Result, mask bool, path string, recorder audit.Recorder) error {
	config := *rs.config.Report
	config.Mask = mask

	generator, err := reporter.NewSafeReportGenerator(&config, rs.logger)
	if err != nil {
		return err
	}
	if err := generator.WriteFile(result, path); err != nil {
		return err
	}

	recorder.Record(audit.EventReportWritten, "report written", map[string]interface{}{
		"path":   path,
		"format": string(config.Format),
		"mask":   mask,
	})
	return nil
}
