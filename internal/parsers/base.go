// Package parsers turns CSV exports into bank and expected records.
//
// Both parsers share the same pipeline: the file is opened and checked
// against the ingestion limits, the header row is mapped onto canonical
// column names through an alias table, and each data row becomes one record
// whose fields carry the confidence of the CSV source. Ingestion fails
// closed: the first invalid row aborts the whole file with an ingestion
// error naming the file and line.
//
// Example usage:
//
//	parser := NewBankParser(nil, Options{DefaultCurrency: "CLP", Limits: DefaultLimits()})
//	records, stats, err := parser.ParseFile(ctx, "cartola.csv")
//
// The package handles common variations found in Chilean bank exports:
//   - ',' or ';' delimiters, detected from the header row
//   - Spanish or English column names
//   - LATAM amount formats such as "1.234,56" and "$ 15.000"
//   - DD-MM-YYYY, DD/MM/YYYY and ISO dates
//   - separate debit (cargo) and credit (abono) columns
package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader bool
	// Delimiter is the field separator. Zero means detect ',' or ';' from
	// the header line.
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        0,
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header":        config.HasHeader,
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
		"max_field_size":    config.MaxFieldSize,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source      string
	LineNumber  int
	Headers     []string
	Columns     map[string]int
	RecordCount int
	CellCount   int
	ctx         context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:  source,
		Headers: make([]string, 0),
		Columns: make(map[string]int),
		ctx:     ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// Has reports whether the canonical column is present
func (pc *ParseContext) Has(column string) bool {
	_, ok := pc.Columns[column]
	return ok
}

// Row maps every canonical column to its trimmed value in record.
// Columns missing from a short record map to "".
func (pc *ParseContext) Row(record []string) map[string]string {
	row := make(map[string]string, len(pc.Columns))
	for name, index := range pc.Columns {
		if index < len(record) {
			row[name] = strings.TrimSpace(record[index])
		} else {
			row[name] = ""
		}
	}
	return row
}

// OpenFile opens a CSV input file
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsPermission(err) {
			return nil, errors.IOError(errors.CodeFilePermission, filePath, err)
		}
		if os.IsNotExist(err) {
			return nil, errors.IOError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, errors.IOError(errors.CodeReadFailed, filePath, err)
	}
	return file, nil
}

// NewReader prepares a csv.Reader over data, which holds the whole file.
// The delimiter is detected when the configuration leaves it unset.
func (bp *BaseParser) NewReader(data []byte, source string) (*csv.Reader, error) {
	if bp.config.ValidateEncoding {
		if err := validateEncoding(data, source); err != nil {
			bp.logger.WithError(err).WithField("file_path", source).Error("File encoding validation failed")
			return nil, err
		}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = bp.config.Delimiter
	if reader.Comma == 0 {
		reader.Comma = detectDelimiter(data)
	}
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return reader, nil
}

// detectDelimiter picks ';' when the first line has more semicolons than commas
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// validateEncoding checks that data is UTF-8 text and reports the first bad line
func validateEncoding(data []byte, source string) error {
	if utf8.Valid(data) {
		return nil
	}
	line := 1
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		chunk := data
		if i >= 0 {
			chunk = data[:i]
		}
		if !utf8.Valid(chunk) {
			break
		}
		if i < 0 {
			break
		}
		data = data[i+1:]
		line++
	}
	return errors.IngestionError(errors.CodeInvalidData, source, line,
		"invalid UTF-8 encoding detected", nil).
		WithSuggestion("save the file in UTF-8 encoding and try again")
}

// ReadHeaders reads the header row and resolves it against columns
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns ColumnSet) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = columns.Names()
		parseCtx.Columns = columns.Positional()
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using positional headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			bp.logger.WithField("file_path", parseCtx.Source).Error("File is empty or contains no data")
			return errors.IngestionError(errors.CodeInvalidData, parseCtx.Source, 0,
				"no records detected: file is empty", nil)
		}
		return errors.IngestionError(errors.CodeInvalidData, parseCtx.Source, 1,
			"header row could not be read", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = headers
	resolved, missing := columns.Resolve(headers)
	parseCtx.Columns = resolved

	bp.logger.WithFields(logger.Fields{
		"headers": headers,
		"columns": len(resolved),
	}).Debug("Successfully read headers")

	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": headers,
		}).Error("Required headers are missing")

		return errors.IngestionError(errors.CodeMissingColumn, parseCtx.Source, 1,
			fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil).
			WithContext("missing", missing).
			WithSuggestion(fmt.Sprintf("add the columns %s (or one of their aliases) to the header row",
				strings.Join(missing, ", ")))
	}
	return nil
}

// ReadRecord reads the next non-empty data row. It returns io.EOF at the end of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			bp.logger.Debug("Record reading cancelled by context")
			return nil, errors.InternalError(errors.CodeUnexpectedError, "csv_parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			line := parseCtx.LineNumber + 1
			if pe, ok := err.(*csv.ParseError); ok {
				line = pe.Line
			}
			return nil, errors.IngestionError(errors.CodeInvalidData, parseCtx.Source, line,
				"malformed CSV row", err)
		}

		line, _ := reader.FieldPos(0)
		parseCtx.LineNumber = line

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			bp.logger.WithField("line_number", line).Debug("Skipping empty record")
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.IngestionError(errors.CodeInvalidData, parseCtx.Source, line,
						fmt.Sprintf("column %d exceeds the maximum field size of %d bytes", i+1, bp.config.MaxFieldSize), nil)
				}
			}
		}

		return record, nil
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	TotalLines    int
	RecordsParsed int
	Cells         int
	Bytes         int64
	// Remapped counts rows rewritten by a bank rule provider
	Remapped int
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %s: %d lines, %d records, %d cells, %d bytes",
		ps.Source, ps.TotalLines, ps.RecordsParsed, ps.Cells, ps.Bytes)
}
