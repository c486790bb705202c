// Package normalizer canonicalizes currency codes, free text and references
// on ingested records before they reach the matching engine.
//
// Normalization never touches identifiers, confidence scores or provenance,
// and applying it twice gives the same result as applying it once.
package normalizer

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
)

// ErrInvalidCurrency is the cause of every currency rejection
var ErrInvalidCurrency = stderrors.New("invalid currency")

// NormalizeBatch returns normalized copies of both sides. The input slices
// are not modified. The first record with an invalid currency aborts the batch.
func NormalizeBatch(bank []models.BankRecord, expected []models.ExpectedRecord) ([]models.BankRecord, []models.ExpectedRecord, error) {
	outBank := make([]models.BankRecord, 0, len(bank))
	for _, rec := range bank {
		normalized, err := NormalizeBank(rec)
		if err != nil {
			return nil, nil, err
		}
		outBank = append(outBank, normalized)
	}

	outExpected := make([]models.ExpectedRecord, 0, len(expected))
	for _, rec := range expected {
		normalized, err := NormalizeExpected(rec)
		if err != nil {
			return nil, nil, err
		}
		outExpected = append(outExpected, normalized)
	}

	return outBank, outExpected, nil
}

// NormalizeBank normalizes a single bank record
func NormalizeBank(rec models.BankRecord) (models.BankRecord, error) {
	currency, err := NormalizeCurrency(rec.Currency)
	if err != nil {
		return models.BankRecord{}, recordCurrencyError("bank", rec.ID, rec.Currency, err)
	}

	rec.Currency = currency
	rec.Description.Value = CollapseWhitespace(rec.Description.Value)
	rec.Reference = NormalizeReference(rec.Reference)
	return rec, nil
}

// NormalizeExpected normalizes a single expected record
func NormalizeExpected(rec models.ExpectedRecord) (models.ExpectedRecord, error) {
	currency, err := NormalizeCurrency(rec.Currency)
	if err != nil {
		return models.ExpectedRecord{}, recordCurrencyError("expected", rec.ID, rec.Currency, err)
	}

	rec.Currency = currency
	rec.Description.Value = CollapseWhitespace(rec.Description.Value)
	rec.Reference = NormalizeReference(rec.Reference)
	if rec.Counterparty != nil {
		cp := *rec.Counterparty
		cp.Value = CollapseWhitespace(cp.Value)
		rec.Counterparty = &cp
	}
	return rec, nil
}

func recordCurrencyError(side, id, value string, err error) error {
	return errors.IngestionError(errors.CodeInvalidCurrency, "", 0,
		fmt.Sprintf("%s record %s has invalid currency %q", side, id, value), err).
		WithContext("record_id", id)
}

// NormalizeCurrency uppercases a currency code and checks that it is exactly
// three ASCII letters. Nothing is defaulted here.
func NormalizeCurrency(code string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if len(upper) != 3 {
		return "", fmt.Errorf("%w: %q must be three letters", ErrInvalidCurrency, code)
	}
	for i := 0; i < len(upper); i++ {
		if upper[i] < 'A' || upper[i] > 'Z' {
			return "", fmt.Errorf("%w: %q must be ASCII letters", ErrInvalidCurrency, code)
		}
	}
	return upper, nil
}

// CollapseWhitespace trims s and replaces every whitespace run with a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeReference strips all whitespace and uppercases the reference.
// A reference that is empty afterwards becomes absent.
func NormalizeReference(ref *models.ConfidenceField[string]) *models.ConfidenceField[string] {
	if ref == nil {
		return nil
	}
	value := strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, ref.Value))
	if value == "" {
		return nil
	}
	out := *ref
	out.Value = value
	return &out
}
