package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with file output and error classification
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the report to writer, classifying failures
func (srg *SafeReportGenerator) GenerateReportSafely(result *models.Result, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Info("Starting report generation")

	if result == nil || writer == nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_generation",
			fmt.Errorf("result and writer are required"))
	}

	if err := srg.GenerateReport(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return errors.IOError(errors.CodeWriteFailed, getWriterDescription(writer), err)
	}

	srg.logger.Info("Report generation completed successfully")
	return nil
}

// WriteFile renders the report into path
func (srg *SafeReportGenerator) WriteFile(result *models.Result, path string) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"path":   path,
	}).Info("Writing report file")

	return AtomicWrite(path, func(w io.Writer) error {
		return srg.GenerateReport(result, w)
	})
}

// AtomicWrite renders into a temporary file beside path and renames it into
// place, so readers never observe a partial file. Failures are IOErrors.
func AtomicWrite(path string, render func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.IOError(errors.CodeWriteFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return classifyWriteError(path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := render(tmp); err != nil {
		cleanup()
		return classifyWriteError(path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return classifyWriteError(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return classifyWriteError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return classifyWriteError(path, err)
	}
	return nil
}

func classifyWriteError(path string, err error) error {
	if rerr, ok := errors.AsReconcilerError(err); ok {
		return rerr
	}
	if os.IsPermission(err) {
		return errors.IOError(errors.CodeFilePermission, path, err)
	}
	return errors.IOError(errors.CodeWriteFailed, path, err)
}

// getWriterDescription returns a description of the writer for logging
func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w == os.Stdout {
			return "stdout"
		}
		if w == os.Stderr {
			return "stderr"
		}
		return w.Name()
	default:
		return fmt.Sprintf("%T", writer)
	}
}
