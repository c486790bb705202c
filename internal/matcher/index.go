package matcher

import (
	"sort"

	"golang-bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// ExpectedIndex provides lookups over expected records for the cascade stages
type ExpectedIndex struct {
	// ReferenceIndex maps normalized references to records carrying them
	ReferenceIndex map[string][]*models.ExpectedRecord

	// AmountIndex maps currency and exact amount to records
	AmountIndex map[string][]*models.ExpectedRecord

	// CurrencyIndex maps a currency to all records in it, ordered by ID
	CurrencyIndex map[string][]*models.ExpectedRecord

	// All holds every indexed record ordered by ID
	All []*models.ExpectedRecord
}

// NewExpectedIndex builds an index over records. Every bucket is ordered by
// record ID so that lookups are deterministic.
func NewExpectedIndex(records []models.ExpectedRecord) *ExpectedIndex {
	index := &ExpectedIndex{
		ReferenceIndex: make(map[string][]*models.ExpectedRecord),
		AmountIndex:    make(map[string][]*models.ExpectedRecord),
		CurrencyIndex:  make(map[string][]*models.ExpectedRecord),
		All:            make([]*models.ExpectedRecord, len(records)),
	}
	for i := range records {
		index.All[i] = &records[i]
	}
	sort.Slice(index.All, func(i, j int) bool { return index.All[i].ID < index.All[j].ID })

	for _, rec := range index.All {
		if ref := rec.ReferenceValue(); ref != "" {
			index.ReferenceIndex[ref] = append(index.ReferenceIndex[ref], rec)
		}
		key := amountKey(rec.Currency, rec.Amount.Value)
		index.AmountIndex[key] = append(index.AmountIndex[key], rec)
		index.CurrencyIndex[rec.Currency] = append(index.CurrencyIndex[rec.Currency], rec)
	}
	return index
}

// GetByReference returns the records with the given reference
func (idx *ExpectedIndex) GetByReference(reference string) []*models.ExpectedRecord {
	if reference == "" {
		return nil
	}
	return idx.ReferenceIndex[reference]
}

// GetByExactAmount returns the records with exactly this currency and amount
func (idx *ExpectedIndex) GetByExactAmount(currency string, amount decimal.Decimal) []*models.ExpectedRecord {
	return idx.AmountIndex[amountKey(currency, amount)]
}

// GetInWindow returns the records in currency dated within windowDays of date
func (idx *ExpectedIndex) GetInWindow(currency string, date models.Date, windowDays int) []*models.ExpectedRecord {
	var result []*models.ExpectedRecord
	for _, rec := range idx.CurrencyIndex[currency] {
		if date.AbsDaysBetween(rec.Date.Value) <= windowDays {
			result = append(result, rec)
		}
	}
	return result
}

// Size returns the number of indexed records
func (idx *ExpectedIndex) Size() int {
	return len(idx.All)
}

// amountKey identifies an amount independent of its written scale:
// 100, 100.0 and 100.00 share a key.
func amountKey(currency string, amount decimal.Decimal) string {
	return currency + "|" + amount.String()
}
