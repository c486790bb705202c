package parsers

import (
	"context"
	"fmt"
	"io"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// ExpectedParser reads the client's file of expected movements
type ExpectedParser struct {
	*BaseParser
	options Options
	logger  logger.Logger
}

// NewExpectedParser creates an expected-movements parser. A nil config uses DefaultParseConfig.
func NewExpectedParser(config *ParseConfig, options Options) *ExpectedParser {
	return &ExpectedParser{
		BaseParser: NewBaseParser(config),
		options:    options.withDefaults(),
		logger:     logger.GetGlobalLogger().WithComponent("expected_parser"),
	}
}

// ParseFile reads the expected movements at path
func (p *ExpectedParser) ParseFile(ctx context.Context, path string) ([]models.ExpectedRecord, *ParseStats, error) {
	data, err := p.options.readFile(p.BaseParser, path)
	if err != nil {
		return nil, nil, err
	}
	return p.parse(ctx, data, path)
}

// Parse reads expected movements from r; source names it in errors
func (p *ExpectedParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.ExpectedRecord, *ParseStats, error) {
	data, err := p.options.read(r, source)
	if err != nil {
		return nil, nil, err
	}
	return p.parse(ctx, data, source)
}

func (p *ExpectedParser) parse(ctx context.Context, data []byte, source string) ([]models.ExpectedRecord, *ParseStats, error) {
	log := p.logger.WithField("file_path", source)
	log.Info("Parsing expected movements")

	var records []models.ExpectedRecord
	seen := make(map[string]int)

	stats, err := p.options.scan(ctx, p.BaseParser, data, source, ExpectedColumns, nil,
		func(row map[string]string, _ []string, line int) error {
			rec, err := p.buildRecord(row, source, line)
			if err != nil {
				return err
			}
			if first, dup := seen[rec.ID]; dup {
				return errors.IngestionError(errors.CodeInvalidData, source, line,
					fmt.Sprintf("duplicate id %s (first seen on line %d)", rec.ID, first), nil)
			}
			seen[rec.ID] = line
			records = append(records, rec)
			return nil
		})
	if err != nil {
		log.WithError(err).Error("Expected movements rejected")
		return nil, stats, err
	}

	log.WithField("records", len(records)).Info("Expected movements parsed")
	return records, stats, nil
}

func (p *ExpectedParser) buildRecord(row map[string]string, source string, line int) (models.ExpectedRecord, error) {
	rec := models.ExpectedRecord{
		ID:           row[ColID],
		Currency:     row[ColCurrency],
		Description:  csvField(row[ColDescription]),
		Reference:    optionalText(row[ColReference]),
		Counterparty: optionalText(row[ColCounterparty]),
	}
	if rec.ID == "" {
		return rec, errors.IngestionError(errors.CodeInvalidData, source, line, "id is required", nil).
			WithContext("column", ColID)
	}
	if rec.Currency == "" {
		rec.Currency = p.options.DefaultCurrency
	}

	date, err := models.ParseDate(row[ColDate])
	if err != nil {
		return rec, rowError(source, line, ColDate, err)
	}
	rec.Date = csvField(date)

	amount, err := models.ParseAmount(row[ColAmount])
	if err != nil {
		return rec, rowError(source, line, ColAmount, err)
	}
	rec.Amount = csvField(amount)

	if err := rec.Validate(); err != nil {
		return rec, errors.IngestionError(errors.CodeInvalidData, source, line, err.Error(), err)
	}
	return rec, nil
}
