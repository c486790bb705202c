package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/canonical"
	"golang-bank-reconciliation/internal/extension"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// CSVFieldScore is the confidence given to every value read from a CSV cell
const CSVFieldScore = 0.95

// Options carries the client settings that shape ingestion
type Options struct {
	// DefaultCurrency is applied to rows with an empty currency column
	DefaultCurrency string
	// AllowOCR admits scanned sources; without it a PDF is rejected outright
	AllowOCR bool
	Limits   Limits
	// Recorder receives ingestion_limit events; nil disables them
	Recorder audit.Recorder
	// BankRules remaps rows of the banks it supports; nil disables it
	BankRules extension.BankRuleProvider
}

func (o Options) withDefaults() Options {
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = models.DefaultCurrency
	}
	if o.Limits == (Limits{}) {
		o.Limits = DefaultLimits()
	}
	return o
}

// checkFileKind rejects inputs this package cannot read
func (o Options) checkFileKind(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", "":
		return nil
	case ".pdf":
		if !o.AllowOCR {
			return errors.IngestionError(errors.CodeOCRNotAllowed, path, 0,
				"PDF input requires OCR, which is disabled for this client", nil)
		}
		return errors.IngestionError(errors.CodeUnsupportedFile, path, 0,
			"PDF extraction is not available in this build", nil).
			WithSuggestion("export the statement as CSV or install an extension that reads PDF")
	default:
		return errors.IngestionError(errors.CodeUnsupportedFile, path, 0,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), nil)
	}
}

// readFile loads path after checking its kind and size
func (o Options) readFile(bp *BaseParser, path string) ([]byte, error) {
	if err := o.checkFileKind(path); err != nil {
		return nil, err
	}
	file, err := bp.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.Size() > o.Limits.MaxInputBytes {
		return nil, exceeded(o.Recorder, path, limitBytes, info.Size(), o.Limits.MaxInputBytes)
	}
	return o.read(file, path)
}

// read loads at most MaxInputBytes from r
func (o Options) read(r io.Reader, source string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, o.Limits.MaxInputBytes+1))
	if err != nil {
		return nil, errors.IOError(errors.CodeReadFailed, source, err)
	}
	if int64(len(data)) > o.Limits.MaxInputBytes {
		return nil, exceeded(o.Recorder, source, limitBytes, int64(len(data)), o.Limits.MaxInputBytes)
	}
	return data, nil
}

// rowFunc turns one resolved row into a record
type rowFunc func(row map[string]string, record []string, line int) error

// scan reads every data row of data, enforcing the row and cell limits
func (o Options) scan(ctx context.Context, bp *BaseParser, data []byte, source string, columns ColumnSet,
	check func(*ParseContext) error, fn rowFunc) (*ParseStats, error) {

	stats := &ParseStats{Source: source, Bytes: int64(len(data))}
	if len(bytes.TrimSpace(data)) == 0 {
		return stats, errors.IngestionError(errors.CodeInvalidData, source, 0, "no records detected: file is empty", nil)
	}

	reader, err := bp.NewReader(data, source)
	if err != nil {
		return stats, err
	}
	parseCtx := NewParseContext(ctx, source)
	if err := bp.ReadHeaders(reader, parseCtx, columns); err != nil {
		return stats, err
	}
	if check != nil {
		if err := check(parseCtx); err != nil {
			return stats, err
		}
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "parse " + filepath.Base(source),
		Every:     10000,
		Logger:    bp.logger,
	})

	for {
		record, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			progress.CompleteWithError(err)
			return stats, err
		}

		parseCtx.RecordCount++
		parseCtx.CellCount += len(record)
		if parseCtx.RecordCount > o.Limits.MaxRows {
			return stats, exceeded(o.Recorder, source, limitRows, int64(parseCtx.RecordCount), int64(o.Limits.MaxRows))
		}
		if parseCtx.CellCount > o.Limits.MaxCells {
			return stats, exceeded(o.Recorder, source, limitCells, int64(parseCtx.CellCount), int64(o.Limits.MaxCells))
		}

		if err := fn(parseCtx.Row(record), record, parseCtx.LineNumber); err != nil {
			progress.CompleteWithError(err)
			return stats, err
		}
		progress.Increment()
	}
	progress.Complete()

	stats.TotalLines = parseCtx.LineNumber
	stats.RecordsParsed = parseCtx.RecordCount
	stats.Cells = parseCtx.CellCount
	if stats.RecordsParsed == 0 {
		return stats, errors.IngestionError(errors.CodeInvalidData, source, 0, "no records detected", nil)
	}
	return stats, nil
}

// rowError reports an invalid value on a data row
func rowError(source string, line int, column string, err error) error {
	return errors.IngestionError(errors.CodeInvalidData, source, line,
		fmt.Sprintf("invalid %s: %v", column, err), err).
		WithContext("column", column)
}

// syntheticID derives a stable ID for rows that carry none. Only the base
// name of source is hashed, so moving an input keeps its IDs.
func syntheticID(prefix, source string, line int, record []string) (string, error) {
	sum, err := canonical.SHA256Hex(map[string]interface{}{
		"file":  filepath.Base(source),
		"line":  line,
		"cells": record,
	})
	if err != nil {
		return "", err
	}
	return prefix + sum[:12], nil
}

// parseBool accepts the yes-like spellings seen in spreadsheets
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "si", "sí", "s", "true", "1", "yes", "y", "x":
		return true
	}
	return false
}

func csvField[T any](v T) models.ConfidenceField[T] {
	return models.ConfidenceField[T]{Value: v, Score: CSVFieldScore, Provenance: models.ProvenanceCSV}
}

func optionalText(v string) *models.ConfidenceField[string] {
	if v == "" {
		return nil
	}
	f := csvField(v)
	return &f
}
