package parsers

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/extension"
	"golang-bank-reconciliation/internal/masking"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

// BankParser reads bank statement exports
type BankParser struct {
	*BaseParser
	options Options
	logger  logger.Logger
}

// NewBankParser creates a bank statement parser. A nil config uses DefaultParseConfig.
func NewBankParser(config *ParseConfig, options Options) *BankParser {
	return &BankParser{
		BaseParser: NewBaseParser(config),
		options:    options.withDefaults(),
		logger:     logger.GetGlobalLogger().WithComponent("bank_parser"),
	}
}

// ParseFile reads the statement at path
func (p *BankParser) ParseFile(ctx context.Context, path string) ([]models.BankRecord, *ParseStats, error) {
	data, err := p.options.readFile(p.BaseParser, path)
	if err != nil {
		return nil, nil, err
	}
	return p.parse(ctx, data, path)
}

// Parse reads a statement from r; source names it in errors and records
func (p *BankParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.BankRecord, *ParseStats, error) {
	data, err := p.options.read(r, source)
	if err != nil {
		return nil, nil, err
	}
	return p.parse(ctx, data, source)
}

func (p *BankParser) parse(ctx context.Context, data []byte, source string) ([]models.BankRecord, *ParseStats, error) {
	log := p.logger.WithField("file_path", source)
	log.Info("Parsing bank statement")

	var records []models.BankRecord
	seen := make(map[string]int)
	remapped := 0

	stats, err := p.options.scan(ctx, p.BaseParser, data, source, BankColumns, requireAmountColumn,
		func(row map[string]string, record []string, line int) error {
			bank := row[ColBank]
			if extension.Supports(p.options.BankRules, bank) {
				mapped, err := p.options.BankRules.NormalizeRow(bank, row)
				if err != nil {
					return errors.IngestionError(errors.CodeInvalidData, source, line,
						fmt.Sprintf("bank rules for %s rejected the row", bank), err)
				}
				row = mapped
				remapped++
			}

			rec, err := p.buildRecord(row, record, source, line)
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
		log.WithError(err).Error("Bank statement rejected")
		return nil, stats, err
	}

	stats.Remapped = remapped
	log.WithFields(logger.Fields{
		"records":  len(records),
		"remapped": remapped,
	}).Info("Bank statement parsed")
	return records, stats, nil
}

// requireAmountColumn accepts a signed amount column or a debit/credit pair
func requireAmountColumn(pc *ParseContext) error {
	if pc.Has(ColAmount) || pc.Has(ColDebit) || pc.Has(ColCredit) {
		return nil
	}
	return errors.IngestionError(errors.CodeMissingColumn, pc.Source, 1,
		"missing required columns: amount (or debit/credit)", nil).
		WithContext("missing", []string{ColAmount})
}

func (p *BankParser) buildRecord(row map[string]string, record []string, source string, line int) (models.BankRecord, error) {
	rec := models.BankRecord{
		ID:          row[ColID],
		BankName:    row[ColBank],
		Currency:    row[ColCurrency],
		Description: csvField(row[ColDescription]),
		Reference:   optionalText(row[ColReference]),
		SourceFile:  source,
		Provenance:  models.ProvenanceCSV,
		SourceRow:   line,
	}
	if rec.ID == "" {
		id, err := syntheticID("TX-", source, line, record)
		if err != nil {
			return rec, errors.InternalError(errors.CodeUnexpectedError, "synthetic_id", err)
		}
		rec.ID = id
	}
	if rec.Currency == "" {
		rec.Currency = p.options.DefaultCurrency
	}
	if account := row[ColAccount]; account != "" {
		rec.AccountMask = masking.MaskAccount(account)
	}

	opDate, err := models.ParseDate(row[ColOperationDate])
	if err != nil {
		return rec, rowError(source, line, ColOperationDate, err)
	}
	rec.OperationDate = csvField(opDate)

	if raw := row[ColAccountingDate]; raw != "" {
		accDate, err := models.ParseDate(raw)
		if err != nil {
			return rec, rowError(source, line, ColAccountingDate, err)
		}
		f := csvField(accDate)
		rec.AccountingDate = &f
	}

	amount, err := bankAmount(row)
	if err != nil {
		return rec, rowError(source, line, ColAmount, err)
	}
	rec.Amount = csvField(amount)

	if parseBool(row[ColBlocks]) {
		rec.BlocksAutoReconcile = true
		rec.BlockReason = row[ColBlockReason]
		if rec.BlockReason == "" {
			rec.BlockReason = "flagged in bank export"
		}
	}

	if err := rec.Validate(); err != nil {
		return rec, errors.IngestionError(errors.CodeInvalidData, source, line, err.Error(), err)
	}
	return rec, nil
}

// bankAmount reads the signed amount, or credit minus debit when only those are present
func bankAmount(row map[string]string) (decimal.Decimal, error) {
	if raw := row[ColAmount]; raw != "" {
		return models.ParseAmount(raw)
	}

	debit, credit := row[ColDebit], row[ColCredit]
	if debit == "" && credit == "" {
		return decimal.Zero, fmt.Errorf("no amount, debit or credit value")
	}
	total := decimal.Zero
	if credit != "" {
		c, err := models.ParseAmount(credit)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(c.Abs())
	}
	if debit != "" {
		d, err := models.ParseAmount(debit)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Sub(d.Abs())
	}
	return total, nil
}
