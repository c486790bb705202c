package matcher

import (
	"testing"

	"github.com/shopspring/decimal"

	"golang-bank-reconciliation/internal/models"
)

func amounts(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func TestFindSubsets(t *testing.T) {
	tests := []struct {
		name          string
		amounts       []decimal.Decimal
		target        string
		limit         int
		wantSolutions int
		wantTruncated bool
		wantUnique    []int
	}{
		{
			name:          "unique triple",
			amounts:       amounts("100", "100", "100", "50"),
			target:        "300",
			limit:         3,
			wantSolutions: 1,
			wantUnique:    []int{0, 1, 2},
		},
		{
			name:          "two equal subsets",
			amounts:       amounts("100", "200", "100"),
			target:        "300",
			limit:         3,
			wantSolutions: 2,
		},
		{
			name:          "negative amounts",
			amounts:       amounts("-50", "150", "200", "100"),
			target:        "100",
			limit:         3,
			wantSolutions: 1,
			wantUnique:    []int{0, 1},
		},
		{
			name:          "single element never counts",
			amounts:       amounts("300", "10"),
			target:        "300",
			limit:         3,
			wantSolutions: 0,
		},
		{
			name:          "decimal cents",
			amounts:       amounts("10.25", "4.75", "3"),
			target:        "15.00",
			limit:         3,
			wantSolutions: 1,
			wantUnique:    []int{0, 1},
		},
		{
			name:          "early exit past limit",
			amounts:       amounts("1", "1", "1", "1", "1", "1"),
			target:        "2",
			limit:         3,
			wantSolutions: 4,
			wantTruncated: true,
		},
		{
			name:          "empty input",
			amounts:       nil,
			target:        "0",
			limit:         3,
			wantSolutions: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindSubsets(tt.amounts, decimal.RequireFromString(tt.target), tt.limit)

			if len(got.Solutions) != tt.wantSolutions {
				t.Fatalf("Expected %d solutions, got %d: %v", tt.wantSolutions, len(got.Solutions), got.Solutions)
			}
			if got.Truncated != tt.wantTruncated {
				t.Errorf("Expected truncated=%v, got %v", tt.wantTruncated, got.Truncated)
			}
			if tt.wantUnique != nil {
				if !got.Unique() {
					t.Fatalf("Expected a unique solution")
				}
				if len(got.Solutions[0]) != len(tt.wantUnique) {
					t.Fatalf("Expected solution %v, got %v", tt.wantUnique, got.Solutions[0])
				}
				for i, idx := range tt.wantUnique {
					if got.Solutions[0][i] != idx {
						t.Errorf("Expected solution %v, got %v", tt.wantUnique, got.Solutions[0])
					}
				}
			}
		})
	}
}

func TestMatchingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MatchingConfig)
		wantErr bool
	}{
		{"default", func(*MatchingConfig) {}, false},
		{"zero window", func(c *MatchingConfig) { c.DateWindowDays = 0 }, false},
		{"negative window", func(c *MatchingConfig) { c.DateWindowDays = -1 }, true},
		{"threshold above one", func(c *MatchingConfig) { c.AutoReconcileThreshold = 1.1 }, true},
		{"negative field confidence", func(c *MatchingConfig) { c.MinFieldConfidence = -0.1 }, true},
		{"cap too small", func(c *MatchingConfig) { c.SubsetCandidateCap = 1 }, true},
		{"cap too large", func(c *MatchingConfig) { c.SubsetCandidateCap = 21 }, true},
		{"zero solution limit", func(c *MatchingConfig) { c.SubsetSolutionLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMatchingConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := StrictMatchingConfig().Validate(); err != nil {
		t.Errorf("Strict config should be valid: %v", err)
	}
}

func TestMatchingConfigClone(t *testing.T) {
	original := DefaultMatchingConfig()
	clone := original.Clone()
	clone.DateWindowDays = 9

	if original.DateWindowDays != 3 {
		t.Errorf("Clone shares state with original")
	}
	if (*MatchingConfig)(nil).Clone() != nil {
		t.Errorf("Clone of nil should be nil")
	}
}

func TestExpectedIndexLookups(t *testing.T) {
	index := NewExpectedIndex([]models.ExpectedRecord{
		newExpected("E2", 10, "100.00", "FAC-1"),
		newExpected("E1", 12, "100", ""),
		newExpected("E3", 20, "100", "FAC-1"),
	})

	if index.Size() != 3 {
		t.Fatalf("Expected 3 records, got %d", index.Size())
	}
	if got := index.GetByReference("FAC-1"); len(got) != 2 || got[0].ID != "E2" || got[1].ID != "E3" {
		t.Errorf("Unexpected reference lookup result")
	}
	if got := index.GetByReference(""); got != nil {
		t.Errorf("Empty reference should match nothing")
	}
	if got := index.GetByExactAmount("CLP", decimal.RequireFromString("100.0")); len(got) != 3 {
		t.Errorf("Expected scale-independent amount lookup, got %d records", len(got))
	}
	if got := index.GetByExactAmount("USD", decimal.RequireFromString("100")); len(got) != 0 {
		t.Errorf("Currency must be part of the amount key")
	}
	got := index.GetInWindow("CLP", day(11), 1)
	if len(got) != 2 || got[0].ID != "E1" || got[1].ID != "E2" {
		t.Errorf("Unexpected window lookup result")
	}
}
