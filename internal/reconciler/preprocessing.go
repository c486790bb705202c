package reconciler

import (
	"sort"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/normalizer"
)

// DatasetStats describes a normalized bank/expected pair before matching
type DatasetStats struct {
	BankRecords     int `json:"bank_records"`
	ExpectedRecords int `json:"expected_records"`

	// Currencies lists every currency seen on either side, sorted
	Currencies []string `json:"currencies"`

	BankWithReference     int `json:"bank_with_reference"`
	ExpectedWithReference int `json:"expected_with_reference"`
	BlockedBankRecords    int `json:"blocked_bank_records"`

	// LowConfidenceRecords counts records with a field below the gating threshold
	LowConfidenceRecords int `json:"low_confidence_records"`

	BankTotals     map[string]decimal.Decimal `json:"bank_totals"`
	ExpectedTotals map[string]decimal.Decimal `json:"expected_totals"`
}

// AsMap returns the statistics as plain values for audit details
func (s *DatasetStats) AsMap() map[string]interface{} {
	totals := func(m map[string]decimal.Decimal) map[string]interface{} {
		out := make(map[string]interface{}, len(m))
		for currency, amount := range m {
			out[currency] = amount.String()
		}
		return out
	}
	return map[string]interface{}{
		"bank_records":            s.BankRecords,
		"expected_records":        s.ExpectedRecords,
		"currencies":              s.Currencies,
		"bank_with_reference":     s.BankWithReference,
		"expected_with_reference": s.ExpectedWithReference,
		"blocked_bank_records":    s.BlockedBankRecords,
		"low_confidence_records":  s.LowConfidenceRecords,
		"bank_totals":             totals(s.BankTotals),
		"expected_totals":         totals(s.ExpectedTotals),
	}
}

// DataPreprocessor normalizes ingested records and profiles the result
type DataPreprocessor struct{}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor() *DataPreprocessor {
	return &DataPreprocessor{}
}

// Preprocess normalizes both sides. minFieldConfidence only feeds the
// statistics; gating itself belongs to the matching engine.
func (dp *DataPreprocessor) Preprocess(bank []models.BankRecord, expected []models.ExpectedRecord,
	minFieldConfidence float64) ([]models.BankRecord, []models.ExpectedRecord, *DatasetStats, error) {

	bank, expected, err := normalizer.NormalizeBatch(bank, expected)
	if err != nil {
		return nil, nil, nil, err
	}

	stats := &DatasetStats{
		BankRecords:     len(bank),
		ExpectedRecords: len(expected),
		BankTotals:      make(map[string]decimal.Decimal),
		ExpectedTotals:  make(map[string]decimal.Decimal),
	}
	currencies := make(map[string]bool)

	for i := range bank {
		rec := &bank[i]
		currencies[rec.Currency] = true
		stats.BankTotals[rec.Currency] = stats.BankTotals[rec.Currency].Add(rec.Amount.Value)
		if rec.Reference != nil {
			stats.BankWithReference++
		}
		if rec.BlocksAutoReconcile {
			stats.BlockedBankRecords++
		}
		if hasLowConfidence(rec.FieldScores(), minFieldConfidence) {
			stats.LowConfidenceRecords++
		}
	}
	for i := range expected {
		rec := &expected[i]
		currencies[rec.Currency] = true
		stats.ExpectedTotals[rec.Currency] = stats.ExpectedTotals[rec.Currency].Add(rec.Amount.Value)
		if rec.Reference != nil {
			stats.ExpectedWithReference++
		}
		if hasLowConfidence(rec.FieldScores(), minFieldConfidence) {
			stats.LowConfidenceRecords++
		}
	}

	stats.Currencies = make([]string, 0, len(currencies))
	for currency := range currencies {
		stats.Currencies = append(stats.Currencies, currency)
	}
	sort.Strings(stats.Currencies)

	return bank, expected, stats, nil
}

func hasLowConfidence(scores []models.FieldScore, threshold float64) bool {
	for _, fs := range scores {
		if fs.Score < threshold {
			return true
		}
	}
	return false
}
