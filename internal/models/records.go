package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when neither the record nor the client names one
const DefaultCurrency = "CLP"

// BankRecord represents one transaction as reported by the bank
type BankRecord struct {
	ID                  string                           `json:"id"`
	AccountMask         string                           `json:"account_mask,omitempty"`
	BankName            string                           `json:"bank_name,omitempty"`
	BlocksAutoReconcile bool                             `json:"blocks_auto_reconcile"`
	BlockReason         string                           `json:"block_reason,omitempty"`
	OperationDate       ConfidenceField[Date]            `json:"operation_date"`
	AccountingDate      *ConfidenceField[Date]           `json:"accounting_date,omitempty"`
	Amount              ConfidenceField[decimal.Decimal] `json:"amount"`
	Currency            string                           `json:"currency"`
	Description         ConfidenceField[string]          `json:"description"`
	Reference           *ConfidenceField[string]         `json:"reference,omitempty"`
	SourceFile          string                           `json:"source_file"`
	Provenance          Provenance                       `json:"provenance"`
	SourceRow           int                              `json:"source_row,omitempty"`
}

// Validate performs basic validation on the BankRecord
func (b *BankRecord) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("bank record ID cannot be empty")
	}
	if b.BlocksAutoReconcile && strings.TrimSpace(b.BlockReason) == "" {
		return fmt.Errorf("bank record %s: block reason is required when auto-reconcile is blocked", b.ID)
	}
	if strings.TrimSpace(b.SourceFile) == "" {
		return fmt.Errorf("bank record %s: source file cannot be empty", b.ID)
	}
	if !b.Provenance.IsValid() {
		return fmt.Errorf("bank record %s: invalid provenance: %s", b.ID, b.Provenance)
	}
	if b.OperationDate.Value.IsZero() {
		return fmt.Errorf("bank record %s: operation date cannot be zero", b.ID)
	}
	for _, fs := range b.FieldScores() {
		if fs.Score < 0 || fs.Score > 1 || !fs.Provenance.IsValid() {
			return fmt.Errorf("bank record %s: invalid confidence on %s", b.ID, fs.Field)
		}
	}
	return nil
}

// FieldScores lists the confidence of every field that gates auto-reconciliation
func (b *BankRecord) FieldScores() []FieldScore {
	scores := []FieldScore{
		{Field: "operation_date", Score: b.OperationDate.Score, Provenance: b.OperationDate.Provenance},
		{Field: "amount", Score: b.Amount.Score, Provenance: b.Amount.Provenance},
		{Field: "description", Score: b.Description.Score, Provenance: b.Description.Provenance},
	}
	if b.Reference != nil {
		scores = append(scores, FieldScore{Field: "reference", Score: b.Reference.Score, Provenance: b.Reference.Provenance})
	}
	return scores
}

// ReferenceValue returns the reference text, or "" when absent
func (b *BankRecord) ReferenceValue() string {
	if b.Reference == nil {
		return ""
	}
	return b.Reference.Value
}

// String returns a string representation of the BankRecord
func (b *BankRecord) String() string {
	return fmt.Sprintf("BankRecord{ID: %s, Amount: %s %s, Date: %s}",
		b.ID, b.Amount.Value.String(), b.Currency, b.OperationDate.Value)
}

// ExpectedRecord represents one movement the client expects to see in the bank
type ExpectedRecord struct {
	ID           string                           `json:"id"`
	Date         ConfidenceField[Date]            `json:"date"`
	Amount       ConfidenceField[decimal.Decimal] `json:"amount"`
	Currency     string                           `json:"currency"`
	Description  ConfidenceField[string]          `json:"description"`
	Reference    *ConfidenceField[string]         `json:"reference,omitempty"`
	Counterparty *ConfidenceField[string]         `json:"counterparty,omitempty"`
}

// Validate performs basic validation on the ExpectedRecord
func (e *ExpectedRecord) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("expected record ID cannot be empty")
	}
	if e.Date.Value.IsZero() {
		return fmt.Errorf("expected record %s: date cannot be zero", e.ID)
	}
	for _, fs := range e.FieldScores() {
		if fs.Score < 0 || fs.Score > 1 || !fs.Provenance.IsValid() {
			return fmt.Errorf("expected record %s: invalid confidence on %s", e.ID, fs.Field)
		}
	}
	return nil
}

// FieldScores lists the confidence of every field that gates auto-reconciliation
func (e *ExpectedRecord) FieldScores() []FieldScore {
	scores := []FieldScore{
		{Field: "date", Score: e.Date.Score, Provenance: e.Date.Provenance},
		{Field: "amount", Score: e.Amount.Score, Provenance: e.Amount.Provenance},
		{Field: "description", Score: e.Description.Score, Provenance: e.Description.Provenance},
	}
	if e.Reference != nil {
		scores = append(scores, FieldScore{Field: "reference", Score: e.Reference.Score, Provenance: e.Reference.Provenance})
	}
	if e.Counterparty != nil {
		scores = append(scores, FieldScore{Field: "counterparty", Score: e.Counterparty.Score, Provenance: e.Counterparty.Provenance})
	}
	return scores
}

// ReferenceValue returns the reference text, or "" when absent
func (e *ExpectedRecord) ReferenceValue() string {
	if e.Reference == nil {
		return ""
	}
	return e.Reference.Value
}

// String returns a string representation of the ExpectedRecord
func (e *ExpectedRecord) String() string {
	return fmt.Sprintf("ExpectedRecord{ID: %s, Amount: %s %s, Date: %s}",
		e.ID, e.Amount.Value.String(), e.Currency, e.Date.Value)
}

// ParseAmount parses an amount as written in bank exports. Currency symbols
// and spaces are dropped. When both '.' and ',' appear the comma is the
// decimal separator; a lone separator kind is treated as thousands grouping.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", "")
	case hasDot && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case hasDot && isThousandsGroup(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", raw, err)
	}
	return d, nil
}

// isThousandsGroup reports whether a single '.' is followed by exactly three digits
func isThousandsGroup(s string) bool {
	i := strings.LastIndex(s, ".")
	return i > 0 && len(s)-i-1 == 3
}
